package stack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/dotdir"
	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/study"
)

func newCmd(configDir string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config-dir", configDir, "")
	cmd.Flags().String("user", "", "")
	cmd.Flags().Bool("debug", false, "")
	cmd.SetContext(context.Background())
	return cmd
}

var _ = Describe("Stack", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
	})

	Describe("Open", func() {
		It("wires an in-memory stack that generates packs", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = config.DriverInMemory

			s, err := stack.Open(ctx, cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(s.Close)

			Expect(s.Orchestrator.ImportStudySet(ctx, &study.StudySet{
				UserID: "ada",
				Title:  "graphs",
				Topics: []string{"graphs"},
			}, []*study.ReviewItem{
				{ItemType: study.ItemTypeFlashcard, Prompt: "What is a DAG?"},
			})).To(Succeed())

			res, err := s.Orchestrator.GenerateDaily(ctx, "ada", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(scheduler.StatusGenerated))
		})

		It("creates the default SQLite database in the drills dir", func() {
			cfg := config.NewDefaultConfig()

			s, err := stack.Open(ctx, cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			_, err = os.Stat(filepath.Join(dir, config.DefaultSQLiteFile))
			Expect(err).NotTo(HaveOccurred())
		})

		It("wires the log notifier", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = config.DriverInMemory
			cfg.Notify.Provider = config.NotifyLog

			s, err := stack.Open(ctx, cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())
		})

		It("rejects unknown providers", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = config.DriverInMemory
			cfg.Notify.Provider = "pigeon"

			_, err := stack.Open(ctx, cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unknown notify provider")))
		})

		It("rejects unknown storage drivers", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "tape"

			_, err := stack.Open(ctx, cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
		})
	})

	Describe("SQLitePath", func() {
		It("keeps in-memory databases as is", func() {
			path, err := stack.SQLitePath(":memory:", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(":memory:"))
		})

		It("creates missing parent directories", func() {
			want := filepath.Join(dir, "nested", "db.sqlite")
			path, err := stack.SQLitePath(want, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(want))

			info, err := os.Stat(filepath.Join(dir, "nested"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("rejects a directory", func() {
			_, err := stack.SQLitePath(dir, dir)
			Expect(err).To(MatchError(ContainSubstring("is a directory")))
		})
	})

	Describe("LoadConfig", func() {
		It("applies bound flags over the config file", func() {
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"),
				[]byte("[api]\nlisten = \":9000\"\n\n[storage]\ndriver = \"inmemory\"\n"), 0o600)).To(Succeed())

			cmd := newCmd(dir)
			var listen string
			config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
			Expect(cmd.Flags().Set("listen", ":9100")).To(Succeed())

			cfg, _, err := stack.LoadConfig(cmd, []string{config.FlagAPIListen})
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9100"))
			Expect(cfg.Storage.Driver).To(Equal(config.DriverInMemory))
		})

		It("rejects an invalid combination", func() {
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"),
				[]byte("[storage]\ndriver = \"postgres\"\n"), 0o600)).To(Succeed())

			_, _, err := stack.LoadConfig(newCmd(dir), nil)
			Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
		})
	})

	Describe("NewLogger", func() {
		It("copies every record to the configured log file as JSON", func() {
			cfg := config.NewDefaultConfig()
			cfg.Log.File = filepath.Join(dir, "logs", "drills.log")

			log, closeLog, err := stack.NewLogger(cfg, false)
			Expect(err).NotTo(HaveOccurred())
			log.Info("generated daily pack", "user_id", "ada")
			Expect(closeLog()).To(Succeed())

			data, err := os.ReadFile(cfg.Log.File)
			Expect(err).NotTo(HaveOccurred())
			var line map[string]any
			Expect(json.Unmarshal(bytes.TrimSpace(data), &line)).To(Succeed())
			Expect(line["msg"]).To(Equal("generated daily pack"))
			Expect(line["user_id"]).To(Equal("ada"))
		})

		It("only logs to stderr without a file", func() {
			log, closeLog, err := stack.NewLogger(config.NewDefaultConfig(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeTrue())
			Expect(closeLog()).To(Succeed())
		})
	})

	Describe("ResolveUser", func() {
		It("prefers the flag", func() {
			cmd := newCmd(dir)
			Expect(cmd.Flags().Set("user", " ada ")).To(Succeed())

			user, err := stack.ResolveUser(cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(Equal("ada"))
		})

		It("falls back to the saved profile", func() {
			Expect(dotdir.NewManager().SaveProfile(&dotdir.Profile{UserID: "grace"}, dir)).To(Succeed())

			user, err := stack.ResolveUser(newCmd(dir))
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(Equal("grace"))
		})

		It("fails without either", func() {
			_, err := stack.ResolveUser(newCmd(dir))
			Expect(err).To(MatchError(stack.ErrNoUser))
		})
	})
})
