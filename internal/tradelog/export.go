// internal/tradelog/export.go
package tradelog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

// ExportFormat selects the export file format.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions filters which closed trades get exported.
type ExportOptions struct {
	Format    ExportFormat
	Since     time.Time
	Until     time.Time
	Reason    string // filter by exit reason, e.g. STOP_LOSS
	OnlyWins  bool
	OutputDir string
}

// ExportSummary accompanies JSON exports.
type ExportSummary struct {
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnLPct float64 `json:"total_pnl_percent"`
}

// Exporter dumps exit history from a trade log into a report file.
type Exporter struct {
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export")}
}

// Export writes the matching exits and returns the created file path.
func (e *Exporter) Export(ctx context.Context, log Log, opts ExportOptions) (string, error) {
	exits, err := log.Exits(ctx, opts.Since, opts.Until)
	if err != nil {
		return "", fmt.Errorf("failed to load exit history: %w", err)
	}

	filtered := make([]engine.CloseRecord, 0, len(exits))
	for _, rec := range exits {
		if opts.Reason != "" && string(rec.Reason) != opts.Reason {
			continue
		}
		if opts.OnlyWins && rec.PnLPercent <= 0 {
			continue
		}
		filtered = append(filtered, rec)
	}
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(opts.OutputDir, e.filename(opts))

	switch opts.Format {
	case FormatCSV:
		err = e.writeCSV(filtered, outputPath)
	case FormatJSON:
		err = e.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("📤 Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)))
	return outputPath, nil
}

func (e *Exporter) filename(opts ExportOptions) string {
	prefix := "exits_all"
	if opts.Reason != "" {
		prefix = "exits_" + opts.Reason
	}
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405"), opts.Format)
}

var csvHeaders = []string{
	"mint", "symbol", "entry_price", "exit_price", "close_percent",
	"pnl_percent", "hold_seconds", "reason", "tx_signature", "closed_at",
}

func (e *Exporter) writeCSV(exits []engine.CloseRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, rec := range exits {
		row := []string{
			rec.AssetID,
			rec.Symbol,
			strconv.FormatFloat(rec.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(rec.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(rec.ClosePercent, 'f', -1, 64),
			strconv.FormatFloat(rec.PnLPercent, 'f', 2, 64),
			strconv.FormatInt(int64(rec.HoldDuration.Seconds()), 10),
			string(rec.Reason),
			rec.ConfirmationID,
			rec.ClosedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	return nil
}

type exportedTrade struct {
	Mint         string    `json:"mint"`
	Symbol       string    `json:"symbol"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	ClosePercent float64   `json:"close_percent"`
	PnLPercent   float64   `json:"pnl_percent"`
	HoldSeconds  int64     `json:"hold_seconds"`
	Reason       string    `json:"reason"`
	TxSignature  string    `json:"tx_signature"`
	ClosedAt     time.Time `json:"closed_at"`
}

func (e *Exporter) writeJSON(exits []engine.CloseRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	summary := ExportSummary{}
	for _, rec := range exits {
		if rec.PnLPercent > 0 {
			summary.Wins++
		} else {
			summary.Losses++
		}
		summary.TotalPnLPct += rec.PnLPercent
	}
	if total := summary.Wins + summary.Losses; total > 0 {
		summary.WinRate = float64(summary.Wins) / float64(total) * 100
	}

	trades := make([]exportedTrade, len(exits))
	for i, rec := range exits {
		trades[i] = exportedTrade{
			Mint:         rec.AssetID,
			Symbol:       rec.Symbol,
			EntryPrice:   rec.EntryPrice,
			ExitPrice:    rec.ExitPrice,
			ClosePercent: rec.ClosePercent,
			PnLPercent:   rec.PnLPercent,
			HoldSeconds:  int64(rec.HoldDuration.Seconds()),
			Reason:       string(rec.Reason),
			TxSignature:  rec.ConfirmationID,
			ClosedAt:     rec.ClosedAt.UTC(),
		}
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		ExportTime time.Time       `json:"export_time"`
		TradeCount int             `json:"trade_count"`
		Summary    ExportSummary   `json:"summary"`
		Trades     []exportedTrade `json:"trades"`
	}{
		ExportTime: time.Now().UTC(),
		TradeCount: len(exits),
		Summary:    summary,
		Trades:     trades,
	})
}
