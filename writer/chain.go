package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "optionflow/config"
	"optionflow/internal/metadata"
	"optionflow/logger"
	"optionflow/models"
)

// ChainRecord is the parquet layout for one archived chain row. Prices stay
// optional so a missing quote is stored as null, not zero.
type ChainRecord struct {
	Underlying  string   `parquet:"name=underlying, type=BYTE_ARRAY, convertedtype=UTF8"`
	Expiry      string   `parquet:"name=expiry, type=BYTE_ARRAY, convertedtype=UTF8"`
	PricingMode string   `parquet:"name=pricing_mode, type=BYTE_ARRAY, convertedtype=UTF8"`
	FetchedAt   int64    `parquet:"name=fetched_at, type=INT64"`
	Strike      float64  `parquet:"name=strike, type=DOUBLE"`
	CallSymbol  string   `parquet:"name=call_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	CallPrice   *float64 `parquet:"name=call_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	CallBid     *float64 `parquet:"name=call_bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	CallAsk     *float64 `parquet:"name=call_ask, type=DOUBLE, repetitiontype=OPTIONAL"`
	PutSymbol   string   `parquet:"name=put_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	PutPrice    *float64 `parquet:"name=put_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	PutBid      *float64 `parquet:"name=put_bid, type=DOUBLE, repetitiontype=OPTIONAL"`
	PutAsk      *float64 `parquet:"name=put_ask, type=DOUBLE, repetitiontype=OPTIONAL"`
	SpotPrice   *float64 `parquet:"name=spot_price, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// ChainWriter archives chain snapshots to S3 as partitioned parquet files.
// Snapshots accumulate per underlying and flush on a fixed interval and on
// shutdown.
type ChainWriter struct {
	config      *appconfig.Config
	snapshots   <-chan models.ChainSnapshot
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.ChainSnapshot
	flushTicker *time.Ticker
	metaGen     *metadata.Generator
}

func NewChainWriter(cfg *appconfig.Config, snapshots <-chan models.ChainSnapshot) (*ChainWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("chain_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	metaDir, err := os.MkdirTemp("", "chainmeta")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	location := fmt.Sprintf("s3://%s/%s", cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix)
	metaGen := metadata.NewGenerator(metaDir, location, "option_chains")

	w := &ChainWriter{
		config:    cfg,
		snapshots: snapshots,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		log:       log,
		metaGen:   metaGen,
	}

	log.WithComponent("chain_writer").WithFields(logger.Fields{
		"bucket":   cfg.Storage.S3.Bucket,
		"region":   cfg.Storage.S3.Region,
		"endpoint": cfg.Storage.S3.Endpoint,
		"prefix":   cfg.Storage.S3.Prefix,
	}).Info("chain writer initialized")

	return w, nil
}

func (w *ChainWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("chain writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("chain_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting chain writer")

	w.buffer = make(map[string][]models.ChainSnapshot)
	w.flushTicker = time.NewTicker(w.config.Storage.S3.FlushInterval)

	w.wg.Add(1)
	go w.ingestWorker()

	w.wg.Add(1)
	go w.flushWorker()

	log.Info("chain writer started successfully")
	return nil
}

func (w *ChainWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("chain_writer").Info("stopping chain writer")
	w.wg.Wait()
	w.log.WithComponent("chain_writer").Info("chain writer stopped")
}

func (w *ChainWriter) ingestWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("chain_writer").WithFields(logger.Fields{"worker": "ingest"})
	log.Info("starting ingest worker")

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case snapshot, ok := <-w.snapshots:
			if !ok {
				log.Info("snapshot channel closed, worker stopping")
				return
			}
			if snapshot.Empty() {
				continue
			}
			w.mu.Lock()
			w.buffer[snapshot.Underlying] = append(w.buffer[snapshot.Underlying], snapshot)
			w.mu.Unlock()
		}
	}
}

func (w *ChainWriter) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("chain_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *ChainWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.ChainSnapshot)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("chain_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing chain buffers")

	for underlying, snapshots := range buffers {
		if len(snapshots) == 0 {
			continue
		}
		w.writeBatch(underlying, snapshots)
	}
}

func (w *ChainWriter) writeBatch(underlying string, snapshots []models.ChainSnapshot) {
	records := flattenSnapshots(snapshots)

	log := w.log.WithComponent("chain_writer").WithFields(logger.Fields{
		"underlying":   underlying,
		"snapshots":    len(snapshots),
		"record_count": len(records),
		"operation":    "write_batch",
	})

	if len(records) == 0 {
		log.Debug("batch has no rows, skipping")
		return
	}

	key := w.objectKey(underlying, snapshots[len(snapshots)-1])
	log = log.WithFields(logger.Fields{"s3_key": key})

	data, err := createParquetFile(records)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.upload(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementS3Write(int64(len(data)))
	log.WithFields(logger.Fields{"file_size": len(data)}).Info("chain batch uploaded")

	last := snapshots[len(snapshots)-1]
	af := metadata.ArchiveFile{
		Path:        fmt.Sprintf("s3://%s/%s", w.config.Storage.S3.Bucket, key),
		FileSize:    int64(len(data)),
		RecordCount: int64(len(records)),
		Underlying:  underlying,
		Expiry:      last.Expiry.UTC().Format("2006-01-02"),
		Date:        last.FetchedAt.UTC().Format("2006-01-02"),
		WrittenAt:   time.Now().UTC(),
	}
	if err := w.metaGen.AddFile(af); err != nil {
		log.WithError(err).Warn("failed to update archive index")
	}
}

// flattenSnapshots turns buffered snapshots into one parquet record per
// chain row, carrying the snapshot context on every row.
func flattenSnapshots(snapshots []models.ChainSnapshot) []ChainRecord {
	var records []ChainRecord
	for _, s := range snapshots {
		expiry := s.Expiry.UTC().Format("2006-01-02")
		for _, row := range s.Rows {
			records = append(records, ChainRecord{
				Underlying:  s.Underlying,
				Expiry:      expiry,
				PricingMode: string(s.PricingMode),
				FetchedAt:   s.FetchedAt.UnixMilli(),
				Strike:      row.Strike,
				CallSymbol:  row.CallSymbol,
				CallPrice:   row.CallPrice,
				CallBid:     row.CallBid,
				CallAsk:     row.CallAsk,
				PutSymbol:   row.PutSymbol,
				PutPrice:    row.PutPrice,
				PutBid:      row.PutBid,
				PutAsk:      row.PutAsk,
				SpotPrice:   s.SpotPrice,
			})
		}
	}
	return records
}

func (w *ChainWriter) objectKey(underlying string, last models.ChainSnapshot) string {
	ts := last.FetchedAt.UTC()
	parts := []string{
		w.config.Storage.S3.Prefix,
		fmt.Sprintf("underlying=%s", underlying),
		fmt.Sprintf("expiry=%s", last.Expiry.UTC().Format("2006-01-02")),
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("chain_%s_%s_%s.parquet", underlying, ts.Format("20060102150405"), uuid.New().String()[:8]),
	}
	if parts[0] == "" {
		parts = parts[1:]
	}
	return filepath.ToSlash(filepath.Join(parts...))
}

func createParquetFile(records []ChainRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(fw, new(ChainRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (w *ChainWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"optionflow-version": w.config.Optionflow.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
