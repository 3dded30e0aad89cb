package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/dotdir"
)

var _ = Describe("dotdir.Manager profile", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	It("returns nil when no profile exists", func() {
		p, err := m.LoadProfile(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeNil())
	})

	It("round-trips a profile", func() {
		p := &dotdir.Profile{UserID: "ada", SessionID: "s-1", Position: 4}
		Expect(m.SaveProfile(p, tmpDir)).To(Succeed())

		loaded, err := m.LoadProfile(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(p))
	})

	It("returns error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "profile.json"), []byte("{"), 0o600)).To(Succeed())

		p, err := m.LoadProfile(tmpDir)
		Expect(err).To(HaveOccurred())
		Expect(p).To(BeNil())
	})

	It("returns error for nil profile", func() {
		Expect(m.SaveProfile(nil, tmpDir)).To(HaveOccurred())
	})

	It("clears the cursor but keeps the user", func() {
		Expect(m.SaveProfile(&dotdir.Profile{UserID: "ada", SessionID: "s-1", Position: 2}, tmpDir)).To(Succeed())
		Expect(m.ClearCursor(tmpDir)).To(Succeed())

		loaded, err := m.LoadProfile(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(&dotdir.Profile{UserID: "ada"}))
	})

	It("clearing without a profile is a no-op", func() {
		Expect(m.ClearCursor(tmpDir)).To(Succeed())
	})
})
