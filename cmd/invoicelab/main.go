package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	clickhousego "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/config"
	"github.com/davicafu/invoicelab/internal/invoice/application"
	"github.com/davicafu/invoicelab/internal/invoice/domain"
	invoiceHTTP "github.com/davicafu/invoicelab/internal/invoice/infra/inbound/http"
	chsink "github.com/davicafu/invoicelab/internal/invoice/infra/outbound/analytics/clickhouse"
	"github.com/davicafu/invoicelab/internal/invoice/infra/outbound/cache"
	invoicePg "github.com/davicafu/invoicelab/internal/invoice/infra/outbound/db/postgres"
	invoiceSqlite "github.com/davicafu/invoicelab/internal/invoice/infra/outbound/db/sqlite"
	"github.com/davicafu/invoicelab/internal/invoice/infra/outbound/directory"
	sharedDomain "github.com/davicafu/invoicelab/internal/shared/domain"
	"github.com/davicafu/invoicelab/internal/shared/infra/db/mongodb"
	sharedPg "github.com/davicafu/invoicelab/internal/shared/infra/db/postgres"
	sharedSqlite "github.com/davicafu/invoicelab/internal/shared/infra/db/sqlite"
	"github.com/davicafu/invoicelab/internal/shared/infra/events"
	sharedBus "github.com/davicafu/invoicelab/internal/shared/infra/platform/bus"
	"github.com/davicafu/invoicelab/internal/shared/infra/relayer"
	"github.com/davicafu/invoicelab/internal/shared/utils"
	"github.com/davicafu/invoicelab/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.Sync()
	log := logger.Logger()

	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------- Persistencia ----------
	var (
		db          *sql.DB
		invoiceRepo domain.InvoiceRepository
		outboxRepo  sharedDomain.OutboxRepository
		txManager   sharedDomain.TransactionManager
		err         error
	)

	switch cfg.DBBackend {
	case "postgres":
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("❌ No se pudo abrir Postgres", zap.Error(err))
		}
		if err := invoicePg.InitPostgres(ctx, db); err != nil {
			log.Fatal("❌ No se pudo inicializar el esquema Postgres", zap.Error(err))
		}
		invoiceRepo = invoicePg.NewInvoiceRepoPostgres(db)
		outboxRepo = sharedPg.NewOutboxRepoPostgres(db)
		txManager = sharedPg.NewTxManager(db)
		log.Info("🐘 Persistencia Postgres")
	default:
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("❌ No se pudo abrir SQLite", zap.Error(err))
		}
		// SQLite no tolera escritores concurrentes sobre la misma conexión.
		db.SetMaxOpenConns(1)
		if err := invoiceSqlite.InitSQLite(ctx, db); err != nil {
			log.Fatal("❌ No se pudo inicializar el esquema SQLite", zap.Error(err))
		}
		invoiceRepo = invoiceSqlite.NewInvoiceRepoSQLite(db)
		outboxRepo = sharedSqlite.NewOutboxRepoSQLite(db)
		txManager = sharedSqlite.NewTxManager(db)
		log.Info("🗃️ Persistencia SQLite", zap.String("path", cfg.SQLitePath))
	}
	defer db.Close()

	// ---------- Cache ----------
	var invoiceCache domain.InvoiceCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
			invoiceCache = cache.NewInMemoryInvoiceCache()
		} else {
			invoiceCache = cache.NewRedisInvoiceCache(rdb)
			defer rdb.Close()
			log.Info("🧠 Cache Redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		invoiceCache = cache.NewInMemoryInvoiceCache()
		log.Info("🧠 Cache en memoria")
	}

	// ---------- Publicación de eventos ----------
	var publisher sharedBus.EventPublisher
	if cfg.UseKafka {
		// El topic lo fija cada mensaje, el writer va sin topic.
		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Balancer: &kafka.Hash{},
		}
		defer writer.Close()
		publisher = events.NewKafkaPublisher(writer, log)
		log.Info("📡 Publicando en Kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		publisher = events.NewInMemoryEventBus()
		log.Info("📡 Bus de eventos en memoria")
	}

	// ---------- Directorio de clientes ----------
	breaker := utils.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	customerDirectory := directory.NewCustomersClient(
		cfg.DirectoryBaseURL, cfg.DirectoryTimeout, cfg.DirectoryRetries, breaker, log,
	)

	// ---------- Casos de uso ----------
	service := application.NewInvoiceService(invoiceRepo, outboxRepo, txManager, customerDirectory, invoiceCache, log)

	// ---------- Relayer ----------
	// El backend mongodb sirve para drenar una colección outbox externa; el
	// outbox transaccional del propio servicio vive siempre en la BD SQL.
	relayerOutbox := outboxRepo
	if cfg.OutboxBackend == "mongodb" {
		mongoClient, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("❌ No se pudo conectar a MongoDB", zap.Error(err))
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		relayerOutbox = mongodb.NewOutboxRepoMongoDB(mongoClient, cfg.MongoDatabase)
		log.Info("🍃 Relayer drenando outbox MongoDB", zap.String("db", cfg.MongoDatabase))
	}

	worker := relayer.NewOutboxWorker(
		relayerOutbox, publisher, cfg.KafkaTopic,
		cfg.OutboxPeriod, cfg.OutboxLimit, cfg.DeliveryTimeout, log,
	)

	if cfg.ClickHouseAddr != "" {
		conn, err := clickhousego.Open(&clickhousego.Options{Addr: []string{cfg.ClickHouseAddr}})
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, analítica desactivada", zap.Error(err))
		} else {
			sink := chsink.NewDeliveryLogClickHouse(conn)
			if err := sink.InitSchema(ctx); err != nil {
				log.Warn("⚠️ No se pudo crear el esquema ClickHouse", zap.Error(err))
			} else {
				worker = worker.WithDeliveryLog(sink)
				log.Info("📊 Analítica de entregas en ClickHouse", zap.String("addr", cfg.ClickHouseAddr))
			}
		}
	}

	go worker.Start(ctx)

	// ---------- HTTP ----------
	router := gin.Default()
	handler := invoiceHTTP.NewInvoiceHandler(service, log)
	invoiceHTTP.RegisterRoutes(router, handler)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info("🚀 Servidor HTTP escuchando", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Error del servidor HTTP", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Señal de apagado recibida")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Apagado HTTP con errores", zap.Error(err))
	}
	log.Info("👋 Servicio detenido")
}
