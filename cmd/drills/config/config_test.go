package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/drills/cmd/drills/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "drills-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .drills dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".drills"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "scheduler.timezone", "Europe/Berlin")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".drills", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("Europe/Berlin"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "scheduler.timezone")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(run("set")).To(HaveOccurred())
		})

		It("rejects invalid int values", func() {
			Expect(run("set", "pack.max_items", "not-a-number")).To(HaveOccurred())
		})

		It("rejects unknown timezones", func() {
			Expect(run("set", "scheduler.timezone", "Mars/Olympus")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "scheduler.run_at", "05:30")).To(Succeed())

			out.Reset()
			Expect(run("get", "scheduler.run_at")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("05:30"))
		})

		It("shows the default for an unset key", func() {
			Expect(run("get", "api.listen")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":8081"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("runs without error when no config exists", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("storage.driver"))
		})

		It("shows values that were set", func() {
			Expect(run("set", "notify.provider", "log")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`notify\.provider\s+= "log"`))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).To(HaveOccurred())
		})
	})
})
