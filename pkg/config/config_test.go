package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/pack"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	writeConfig := func(data string) {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("keeps defaults for keys missing from a partial file", func() {
			writeConfig(`[scheduler]
timezone = "Asia/Tokyo"

[pack]
max_items = 40
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Scheduler.Timezone).To(Equal("Asia/Tokyo"))
			Expect(cfg.Scheduler.RunAt).To(Equal("02:00"))
			Expect(cfg.Scheduler.RecalculateOnResponse).To(BeTrue())
			Expect(cfg.Pack.MaxItems).To(Equal(40))
			Expect(cfg.Pack.DueFlashcards).To(Equal(pack.DefaultPolicy().DueFlashcards))
		})

		It("honours an explicit false", func() {
			writeConfig(`[scheduler]
recalculate_on_response = false
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Scheduler.RecalculateOnResponse).To(BeFalse())
		})

		It("returns error for malformed TOML", func() {
			writeConfig("[scheduler\nrun_at = ")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 7\n")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 7")))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips every section", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = config.DriverPostgres
			cfg.Storage.PostgresDSN = "postgres://drills@localhost/drills"
			cfg.Notify.Provider = config.NotifyKafka
			cfg.Notify.KafkaBrokers = []string{"k1:9092", "k2:9092"}
			cfg.Locks.Provider = config.LocksRedis
			cfg.Locks.RedisAddr = "localhost:6379"
			cfg.Scheduler.RecalculateOnResponse = false
			cfg.Topics.WeakThreshold = 62.5
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))

			info, err := os.Stat(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the default when nothing was saved", func() {
			v, err := c.GetConfigValue("scheduler.run_at")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("02:00"))
		})

		DescribeTable("accepts valid values",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(value))
			},
			Entry("string", "api.listen", ":9000"),
			Entry("int", "pack.max_items", "30"),
			Entry("uint", "notify.workers", "8"),
			Entry("bool", "log.json", "true"),
			Entry("float", "topics.weak_threshold", "55.5"),
			Entry("duration", "scheduler.user_timeout", "45s"),
			Entry("timezone", "scheduler.timezone", "Europe/Berlin"),
			Entry("run at", "scheduler.run_at", "23:30"),
			Entry("list", "notify.kafka_brokers", "a:9092,b:9092"),
			Entry("enum", "storage.driver", "inmemory"),
		)

		DescribeTable("rejects invalid values",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).To(HaveOccurred())
			},
			Entry("int", "pack.max_items", "many"),
			Entry("uint", "notify.workers", "-1"),
			Entry("bool", "log.debug", "sometimes"),
			Entry("threshold range", "topics.weak_threshold", "120"),
			Entry("duration", "locks.ttl", "forever"),
			Entry("timezone", "scheduler.timezone", "Mars/Olympus"),
			Entry("run at", "scheduler.run_at", "25:00"),
			Entry("driver", "storage.driver", "mongo"),
			Entry("notify provider", "notify.provider", "pager"),
			Entry("locks provider", "locks.provider", "zookeeper"),
		)

		It("returns error for unknown key", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(HaveOccurred())
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("api.listen", ":9000")).To(Succeed())
			Expect(c.SetConfigValue("pack.oversample", "6")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.Pack.Oversample).To(Equal(6))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key exactly once, in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("storage.driver"))
		Expect(keys[len(keys)-1]).To(Equal("log.file"))

		seen := map[string]bool{}
		for _, k := range keys {
			Expect(seen).NotTo(HaveKey(k))
			seen[k] = true
			Expect(config.IsValidConfigKey(k)).To(BeTrue())
		}
	})

	It("rejects unknown keys", func() {
		Expect(config.IsValidConfigKey("embedding.model")).To(BeFalse())
		Expect(config.IsValidConfigKey("")).To(BeFalse())
	})
})

var _ = Describe("Config", func() {
	It("converts the pack section into a valid policy", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Pack.Policy()).To(Equal(pack.DefaultPolicy()))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("resolves durations and location", func() {
		cfg := config.NewDefaultConfig()
		d, err := cfg.Scheduler.UserTimeoutDuration()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(30 * time.Second))

		ttl, err := cfg.Locks.TTLDuration()
		Expect(err).NotTo(HaveOccurred())
		Expect(ttl).To(Equal(2 * time.Minute))

		loc, err := cfg.Scheduler.Location()
		Expect(err).NotTo(HaveOccurred())
		Expect(loc).To(Equal(time.UTC))
		Expect(cfg.Topics.Window()).To(Equal(7 * 24 * time.Hour))
	})

	DescribeTable("Validate rejects incomplete provider settings",
		func(mutate func(*config.Config), msg string) {
			cfg := config.NewDefaultConfig()
			mutate(cfg)
			Expect(cfg.Validate()).To(MatchError(ContainSubstring(msg)))
		},
		Entry("postgres without dsn", func(c *config.Config) { c.Storage.Driver = config.DriverPostgres }, "postgres_dsn"),
		Entry("kafka without brokers", func(c *config.Config) { c.Notify.Provider = config.NotifyKafka }, "kafka_brokers"),
		Entry("redis without addr", func(c *config.Config) { c.Locks.Provider = config.LocksRedis }, "redis_addr"),
		Entry("zero max items", func(c *config.Config) { c.Pack.MaxItems = 0 }, "pack"),
	)
})

var _ = Describe("SplitList", func() {
	It("drops blanks and trims", func() {
		Expect(config.SplitList(" a:1, ,b:2 ,")).To(Equal([]string{"a:1", "b:2"}))
		Expect(config.SplitList("")).To(BeEmpty())
	})
})
