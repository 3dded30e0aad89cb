package drillscmder_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	drillscmder "github.com/papercomputeco/drills/cmd/drills"
	"github.com/papercomputeco/drills/pkg/pack"
)

var _ = Describe("NewDrillsCmd", func() {
	It("registers every subcommand", func() {
		cmd := drillscmder.NewDrillsCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "generate", "answer", "topics", "pack",
			"study", "seed", "use", "config", "version",
		))
	})

	It("has global debug, config-dir and user flags", func() {
		cmd := drillscmder.NewDrillsCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("user")).NotTo(BeNil())
	})
})

var _ = Describe("drills commands", func() {
	var (
		dir string
		db  string
		out *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := drillscmder.NewDrillsCmd()
		out.Reset()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--config-dir", dir))
		return cmd.Execute()
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		db = filepath.Join(dir, "test.sqlite")
		out = &bytes.Buffer{}
	})

	It("prints the version", func() {
		Expect(run("version")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("drills"))
	})

	It("remembers the selected user", func() {
		Expect(run("use", "ada")).To(Succeed())
		Expect(run("use")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("ada"))
	})

	It("requires a user for user commands", func() {
		Expect(run("pack", "--sqlite", db)).To(MatchError(ContainSubstring("no user selected")))
	})

	It("seeds, previews, generates and answers against SQLite", func() {
		Expect(run("use", "ada")).To(Succeed())
		Expect(run("seed", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Seeded"))

		Expect(run("seed", "--sqlite", db)).To(MatchError(ContainSubstring("--overwrite")))

		Expect(run("pack", "--sqlite", db, "--json")).To(Succeed())
		var p pack.Pack
		Expect(json.Unmarshal(out.Bytes(), &p)).To(Succeed())
		Expect(p.UserID).To(Equal("ada"))
		Expect(p.Items).NotTo(BeEmpty())
		Expect(p.WeakTopics).To(ContainElement("networking"))

		Expect(run("generate", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Generated"))

		Expect(run("generate", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("already has an active session"))

		Expect(run("answer", "mcq", "demo-ada-go-4", "--correct", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("interval 1d"))

		Expect(run("topics", "weak", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("networking"))

		Expect(run("topics", "recalc", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Recalculated"))

		Expect(run("generate", "--all", "--force", "--sqlite", db)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("1 generated"))
	})

	It("rejects an unknown item type", func() {
		Expect(run("answer", "essay", "x", "--user", "ada", "--sqlite", db)).To(HaveOccurred())
	})
})
