package initcmder_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/localmind/smriti/cmd/smriti/init"
	"github.com/localmind/smriti/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("accepts zero arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		err := cmd.Args(cmd, []string{"extra"})
		Expect(err).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir = GinkgoT().TempDir()

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
	})

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(io.Discard)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("creates a .smriti directory in the current directory", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".smriti"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("creates a config.toml with default values", func() {
		Expect(execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Client.BaseURL).To(Equal("http://localhost:8080"))
		Expect(cfg.Client.Model).To(Equal("deepseek"))
		Expect(cfg.Stream.MaxAttempts).To(Equal(uint(6)))
		Expect(cfg.Stream.OnConflict).To(Equal("reject"))
		Expect(cfg.EventStream.Provider).To(BeEmpty())
	})

	It("succeeds when .smriti directory already exists", func() {
		err := os.MkdirAll(filepath.Join(tmpDir, ".smriti"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".smriti"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("does not overwrite existing contents when already initialized", func() {
		smritiDir := filepath.Join(tmpDir, ".smriti")
		err := os.MkdirAll(smritiDir, 0o755)
		Expect(err).NotTo(HaveOccurred())

		resumeFile := filepath.Join(smritiDir, "resume.json")
		err = os.WriteFile(resumeFile, []byte(`{"chatId":"c1"}`), 0o644)
		Expect(err).NotTo(HaveOccurred())

		configFile := filepath.Join(smritiDir, "config.toml")
		err = os.WriteFile(configFile, []byte("[client]\nmodel = \"llama3\"\n"), 0o644)
		Expect(err).NotTo(HaveOccurred())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(resumeFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"chatId":"c1"}`))
		Expect(loadConfig(tmpDir).Client.Model).To(Equal("llama3"))
	})

	Describe("--preset with named presets", func() {
		It("creates config.toml with the local preset", func() {
			Expect(execute("--preset", "local")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Client.BaseURL).To(Equal("http://localhost:8080"))
			Expect(cfg.Storage.SQLitePath).To(BeEmpty())
		})

		It("creates config.toml with the kafka preset", func() {
			Expect(execute("--preset", "kafka")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Storage.SQLitePath).To(Equal("smriti.db"))
			Expect(cfg.EventStream.Provider).To(Equal("kafka"))
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"localhost:9092"}))
			Expect(cfg.EventStream.Topic).To(Equal("smriti.replies"))
		})

		It("rejects unknown preset names", func() {
			err := execute("--preset", "invalid-preset")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown preset"))

			_, err = os.Stat(filepath.Join(tmpDir, ".smriti"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[client]
base_url = "http://mind.local:9090"
model = "llama3"

[stream]
max_attempts = 3
on_conflict = "cancel"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Version).To(Equal(0))
			Expect(cfg.Client.BaseURL).To(Equal("http://mind.local:9090"))
			Expect(cfg.Client.Model).To(Equal("llama3"))
			Expect(cfg.Stream.MaxAttempts).To(Equal(uint(3)))
			Expect(cfg.Stream.OnConflict).To(Equal("cancel"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("HTTP 404"))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			err := execute("--preset", server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing"))
		})

		It("returns error for unreachable URL", func() {
			err := execute("--preset", "http://127.0.0.1:1")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("fetching remote config"))
		})
	})

	Describe("--preset overwrites config on re-init", func() {
		It("overwrites existing config.toml when re-running with a different preset", func() {
			Expect(execute("--preset", "kafka")).To(Succeed())
			Expect(loadConfig(tmpDir).EventStream.Provider).To(Equal("kafka"))

			Expect(execute("--preset", "local")).To(Succeed())
			Expect(loadConfig(tmpDir).EventStream.Provider).To(BeEmpty())
		})
	})
})

// loadConfig is a test helper that reads and parses the config.toml from the
// .smriti directory within the given base directory.
func loadConfig(baseDir string) *config.Config {
	configPath := filepath.Join(baseDir, ".smriti", "config.toml")
	data, err := os.ReadFile(configPath)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	err = toml.Unmarshal(data, cfg)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return cfg
}
