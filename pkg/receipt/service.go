package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// ScanCost is the number of AI credits one scan consumes.
const ScanCost = 1

// Ledger is the subset of the credit ledger a scan needs.
type Ledger interface {
	Consume(ctx context.Context, uid string, n int64, reason string) error
	Refund(ctx context.Context, uid string, n int64) error
	RecordUsage(ctx context.Context, uid string, u credits.Usage) (*model.AIUsage, error)
}

// Service runs paid receipt scans.
type Service struct {
	extractor Extractor
	ledger    Ledger
	logger    *slog.Logger
}

// NewService creates a scan service that bills ScanCost credits per scan.
func NewService(extractor Extractor, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{extractor: extractor, ledger: ledger, logger: logger}
}

// Scan charges one credit, extracts the receipt and records AI usage.
// The credit is refunded when extraction fails.
func (s *Service) Scan(ctx context.Context, uid, imageURL string) (*Result, error) {
	if uid == "" {
		return nil, fmt.Errorf("scan: missing user id: %w", model.ErrInvalidInput)
	}
	if err := validateImageURL(imageURL); err != nil {
		return nil, err
	}

	if err := s.ledger.Consume(ctx, uid, ScanCost, credits.ReasonReceiptScan); err != nil {
		return nil, err
	}

	res, err := s.extractor.Extract(ctx, imageURL)
	if err != nil {
		s.logger.Warn("receipt extraction failed", "user_id", uid, "extractor", s.extractor.Name(), "error", err)
		if rerr := s.ledger.Refund(ctx, uid, ScanCost); rerr != nil {
			s.logger.Error("refund scan credit", "user_id", uid, "error", rerr)
		}
		return nil, fmt.Errorf("extract receipt: %w", err)
	}

	if _, err := s.ledger.RecordUsage(ctx, uid, res.Usage); err != nil {
		s.logger.Error("record ai usage", "user_id", uid, "error", err)
	}
	s.logger.Info("receipt scanned", "user_id", uid, "items", len(res.Items), "total", res.Total)
	return res, nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("scan: missing image url: %w", model.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("scan: image url must be http or https: %w", model.ErrInvalidInput)
	}
	return nil
}
