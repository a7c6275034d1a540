package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/citadel/internal/database"
)

// Version はビルド時に-ldflagsで上書きされる。
var Version = "dev"

// Run はコマンドライン引数からサブコマンドを解析して実行する。
// argsにはos.Args[1:]を渡す。ログはstderr、コマンドの出力はstdoutに書き込む。
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := NewRootCommand(stdin, stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli はサブコマンド間で共有する入出力。
type cli struct {
	in  *bufio.Reader
	out io.Writer
	log io.Writer
}

// container は設定を読み込み依存関係を組み立てる。呼び出し元がCloseする。
func (c *cli) container(ctx context.Context) (*Container, error) {
	cfg, log, err := Init(c.log)
	if err != nil {
		return nil, err
	}
	return NewContainer(ctx, cfg, log)
}

// prompt はlabelを表示して1行読み込む。空行の場合はdefを返す。
func (c *cli) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// NewRootCommand はcitadelコマンドのツリーを生成する。
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{in: bufio.NewReader(stdin), out: stdout, log: stderr}

	root := &cobra.Command{
		Use:           "citadel",
		Short:         "Citadel dinner matchmaking client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		versionCommand(c),
		healthcheckCommand(c),
		relayCommand(c),
		migrateCommand(c),
		loginCommand(c),
		logoutCommand(c),
		statusCommand(c),
		citiesCommand(c),
		eventsCommand(c),
		eventCommand(c),
		bookingsCommand(c),
		profileCommand(c),
		signupCommand(c),
		bookCommand(c),
		payCommand(c),
		confirmPaymentCommand(c),
	)
	return root
}

func versionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "citadel version %s\n", Version)
		},
	}
}

// healthcheckCommand はdistroless環境でのDockerヘルスチェック用サブコマンド。
// フル初期化をスキップし、リレーの/healthにHTTPリクエストを送る。
func healthcheckCommand(c *cli) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the local relay is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				port := os.Getenv("RELAY_PORT")
				if port == "" {
					port = "8080"
				}
				target = fmt.Sprintf("http://localhost:%s/health", port)
			}
			return runHealthcheck(cmd.Context(), target)
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "health endpoint URL (default http://localhost:$RELAY_PORT/health)")
	return cmd
}

func relayCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run the CORS relay in front of the Citadel API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(c.log)
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg, log)
		},
	}
}

// migrateCommand はPostgreSQLストアのマイグレーションを実行する。
func migrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the Postgres state store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(c.log)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			log.Info("running database migrations",
				"direction", direction,
				"database_url", maskDatabaseURL(cfg.DatabaseURL),
			)

			switch direction {
			case "down":
				err = database.RollbackMigrations(cfg.DatabaseURL)
			case "version":
				version, dirty, verr := database.Version(cfg.DatabaseURL)
				if verr != nil {
					return fmt.Errorf("failed to read migration version: %w", verr)
				}
				fmt.Fprintf(c.out, "version %d (dirty: %t)\n", version, dirty)
				return nil
			default:
				err = database.RunMigrations(cfg.DatabaseURL)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info("database migrations completed successfully")
			return nil
		},
	}
}

// runHealthcheck はtargetにGETを送り、200以外をエラーとする。
func runHealthcheck(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
