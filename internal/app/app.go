package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/backend"
	"github.com/hitoshi/notesapp/internal/backend/local"
	"github.com/hitoshi/notesapp/internal/backend/remote"
	"github.com/hitoshi/notesapp/internal/config"
	"github.com/hitoshi/notesapp/internal/database"
	"github.com/hitoshi/notesapp/internal/handler"
	"github.com/hitoshi/notesapp/internal/logger"
	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/middleware"
	"github.com/hitoshi/notesapp/internal/notes"
	"github.com/hitoshi/notesapp/internal/repository"
	"github.com/hitoshi/notesapp/internal/session"
	"github.com/hitoshi/notesapp/internal/validation"
	"github.com/hitoshi/notesapp/internal/worker/cleanup"
)

const (
	// healthTimeout は/healthでのバックエンド疎通確認に許す時間。
	healthTimeout = 3 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
	shutdownTimeout = 30 * time.Second
)

// errWorkerRequiresLocal はremoteバックエンドでworkerを起動した場合のエラー。
var errWorkerRequiresLocal = errors.New("worker requires BACKEND=local")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckAddr())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("backend", cfg.Backend),
		slog.String("addr", cfg.Addr()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openBackend は設定に応じたbackend.Clientを生成する。
// localの場合は開いたDB接続も返す（remoteではnil）。呼び出し側でCloseすること。
func openBackend(cfg *config.Config) (backend.Client, *sql.DB, error) {
	store := backend.NewTokenStore(cfg.SessionFile)

	switch cfg.Backend {
	case config.BackendRemote:
		client := remote.New(remote.Config{
			URL:           cfg.SupabaseURL,
			AnonKey:       cfg.SupabaseAnonKey,
			Timeout:       cfg.BackendTimeout,
			RefreshMargin: cfg.TokenRefreshMargin,
		}, store)
		client.StartAutoRefresh(refreshInterval(cfg.TokenRefreshMargin))
		return client, nil, nil

	default:
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		client := local.New(
			db,
			repository.NewPostgresUserRepo(db),
			repository.NewPostgresSessionRepo(db),
			repository.NewPostgresNoteRepo(db),
			store,
			local.Config{SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second},
		)
		return client, db, nil
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// refreshInterval はトークン更新の確認間隔を返す。
// 更新マージン内に少なくとも2回確認できるようにする。
func refreshInterval(margin time.Duration) time.Duration {
	interval := margin / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// components はserveモードで組み立てる構成要素。
type components struct {
	router    http.Handler
	sessions  *session.Manager
	limiter   *middleware.RateLimiter
	collector metrics.MetricsCollector
	unwatch   func()
}

// close はセッション監視とレートリミッターを停止する。
func (c *components) close() {
	c.unwatch()
	c.sessions.Teardown()
	c.limiter.Stop()
}

// buildComponents はバックエンドクライアントから画面・APIの依存関係を組み立てる。
// セッションの解決はまだ開始しない（Initializeは呼び出し側で行う）。
func buildComponents(cfg *config.Config, client backend.Client, reg *prometheus.Registry, logger *slog.Logger) (*components, error) {
	// 1. メトリクスと計測付きクライアント
	collector := metrics.NewCollector(reg)
	svc := metrics.InstrumentBackend(client, collector)

	// 2. セッション管理とメモ画面
	sessions := session.NewManager(svc, cfg.SessionResolveTimeout)
	controller := notes.NewController(svc, collector, logger)
	unwatch := sessions.Watch(controller.ObserveSession)

	// 3. 認証フォーム
	v := validation.New()
	loginForm := auth.NewLoginForm(svc, v, collector, logger)
	registerForm := auth.NewRegisterForm(svc, v, collector, logger)

	// 4. テンプレート
	renderer, err := handler.NewRenderer(logger)
	if err != nil {
		unwatch()
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	// 5. ルーター
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:    sessions,
		RateLimiter: limiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Metrics: collector,
		Logger:  logger,

		Renderer:     renderer,
		LoginForm:    loginForm,
		RegisterForm: registerForm,
		SignOut:      svc,
		Notes:        controller,

		Pinger:         svc,
		HealthTimeout:  healthTimeout,
		MetricsHandler: metrics.SetupMetricsRoute(reg),
	})

	return &components{
		router:    router,
		sessions:  sessions,
		limiter:   limiter,
		collector: collector,
		unwatch:   unwatch,
	}, nil
}

// runServe はWebサーバーモードで起動する。
// バックエンドに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. バックエンド接続
	client, db, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	if db != nil {
		defer db.Close()
	}

	// 2. 依存関係の組み立て
	reg := prometheus.NewRegistry()
	comps, err := buildComponents(cfg, client, reg, slog.Default())
	if err != nil {
		return err
	}
	defer comps.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. セッションの解決を開始（完了までは読み込み中画面を返す）
	comps.sessions.Initialize(ctx)

	// 4. localでは期限切れセッションのクリーンアップを併走させる
	if db != nil {
		job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), comps.collector, slog.Default())
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      comps.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.Backend != config.BackendLocal {
		return errWorkerRequiresLocal
	}

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. クリーンアップジョブの初期化
	reg := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		metrics.NewCollector(reg),
		slog.Default(),
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. クリーンアップをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.Backend != config.BackendLocal {
		slog.Info("migrations are managed by the remote service; nothing to do")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// healthcheckAddr は環境変数からヘルスチェック先のアドレスを組み立てる。
func healthcheckAddr() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return host + ":" + port
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(addr string) error {
	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
