package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetString("scheduler.run_at")).To(Equal(defaults.Scheduler.RunAt))
		Expect(v.GetInt("pack.max_items")).To(Equal(defaults.Pack.MaxItems))
	})

	It("reads config file values over defaults", func() {
		data := `[notify]
provider = "kafka"
kafka_brokers = ["k1:9092", "k2:9092"]
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Notify.Provider).To(Equal("kafka"))
		Expect(cfg.Notify.KafkaBrokers).To(Equal([]string{"k1:9092", "k2:9092"}))
		Expect(cfg.Notify.KafkaTopic).To(Equal("drills.pack.ready"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[scheduler]
run_at = "04:00"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("DRILLS_SCHEDULER_RUN_AT", "05:15")
		GinkgoT().Setenv("DRILLS_NOTIFY_KAFKA_BROKERS", "e1:9092,e2:9092")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Scheduler.RunAt).To(Equal("05:15"))
		Expect(cfg.Notify.KafkaBrokers).To(Equal([]string{"e1:9092", "e2:9092"}))
	})

	It("surfaces invalid values from the environment", func() {
		GinkgoT().Setenv("DRILLS_PACK_MAX_ITEMS", "lots")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.FromViper(v)
		Expect(err).To(MatchError(ContainSubstring("pack.max_items")))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)

		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[api]
listen = ":5555"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nonexistent"})

		Expect(v.GetString("api.listen")).To(Equal(config.NewDefaultConfig().API.Listen))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		var path string
		config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &path)

		f := cmd.Flags().Lookup("sqlite")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("s"))
		Expect(f.Usage).To(ContainSubstring("SQLite"))
	})

	It("AddUintFlag takes its default from the config defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var workers uint
		config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &workers)

		f := cmd.Flags().Lookup("notify-workers")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("3"))
	})
})
