// Package validate turns raw bill-creation requests into validated domain
// values. Everything the core consumes has already passed through here.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
)

// ErrInvalid is the sentinel for every request-validation failure. Callers
// distinguish it from not-found and internal errors with errors.Is.
var ErrInvalid = errors.New("invalid bill request")

// UserResolver looks identities up in the external directory.
type UserResolver interface {
	// ResolveUser returns the user for the given ID, or nil if the directory
	// does not know it.
	ResolveUser(ctx context.Context, uid string) (*models.User, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApportionItem is one user's declared value in the request body.
type ApportionItem struct {
	User  string          `json:"user" validate:"required,min=1,max=32"`
	Value decimal.Decimal `json:"value"`
}

// BillRequest is the wire shape of a bill-creation request.
type BillRequest struct {
	Title             string          `json:"title" validate:"required,min=1"`
	TradeTime         string          `json:"trade_time" validate:"required"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Party             string          `json:"party" validate:"required,min=1,max=32"`
	Counterparty      []string        `json:"counterparty" validate:"required,min=1,dive,min=1,max=32"`
	ApportionMethod   string          `json:"apportion_method" validate:"required"`
	Apportions        []ApportionItem `json:"apportions" validate:"required,min=1,dive"`
	AsApportionPreset bool            `json:"as_apportion_preset"`
	PresetTitle       string          `json:"apportion_preset_title"`
	PresetOrgID       string          `json:"apportion_preset_organization_id"`
}

// ValidatedBill is the outcome of a successful parse: domain values the
// calculator and ledger can trust without re-checking.
type ValidatedBill struct {
	Bill          models.Bill
	Apportionment models.Apportionment
	SavePreset    bool
	PresetName    string
	PresetOrgID   string
}

// ParseBill decodes, validates, and normalizes a bill-creation request.
// All failures wrap ErrInvalid; nothing is persisted on this path.
func ParseBill(ctx context.Context, body io.Reader, resolver UserResolver) (*ValidatedBill, error) {
	var req BillRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return req.Validate(ctx, resolver)
}

// Validate checks the request and returns the validated domain values.
func (req *BillRequest) Validate(ctx context.Context, resolver UserResolver) (*ValidatedBill, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	method := models.ApportionMethod(req.ApportionMethod)
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown apportion method %q", ErrInvalid, req.ApportionMethod)
	}

	price := req.Price.Round(2)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalid)
	}

	tradeTime, err := time.Parse(time.RFC3339, req.TradeTime)
	if err != nil {
		return nil, fmt.Errorf("%w: trade_time must be ISO 8601 with timezone: %v", ErrInvalid, err)
	}

	counterparty := make(map[string]struct{}, len(req.Counterparty))
	for _, uid := range req.Counterparty {
		if _, dup := counterparty[uid]; dup {
			return nil, fmt.Errorf("%w: counterparty contains duplicate uid %q", ErrInvalid, uid)
		}
		counterparty[uid] = struct{}{}
	}

	seen := make(map[string]struct{}, len(req.Apportions))
	values := make([]models.ApportionValue, 0, len(req.Apportions))
	sum := decimal.Zero
	for _, item := range req.Apportions {
		if _, dup := seen[item.User]; dup {
			return nil, fmt.Errorf("%w: apportions contain duplicate user %q", ErrInvalid, item.User)
		}
		seen[item.User] = struct{}{}
		if _, ok := counterparty[item.User]; !ok {
			return nil, fmt.Errorf("%w: apportion user %q is not a counterparty", ErrInvalid, item.User)
		}
		value := item.Value.Round(2)
		if value.IsNegative() {
			return nil, fmt.Errorf("%w: apportion value for %q is negative", ErrInvalid, item.User)
		}
		values = append(values, models.ApportionValue{UID: item.User, Value: value})
		sum = sum.Add(value)
	}

	switch method {
	case models.MethodPrice:
		if !sum.Equal(price) {
			return nil, fmt.Errorf("%w: apportion prices sum to %s, want total %s", ErrInvalid, sum, price)
		}
	case models.MethodRatio:
		if !sum.Equal(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: apportion ratios sum to %s, want exactly 100.00", ErrInvalid, sum)
		}
	case models.MethodShare:
		if !sum.IsPositive() {
			return nil, fmt.Errorf("%w: apportion shares must sum above 0.00", ErrInvalid)
		}
	}

	// Every referenced identity has to exist in the directory before anything
	// touches the store.
	for _, uid := range append([]string{req.Party}, req.Counterparty...) {
		user, err := resolver.ResolveUser(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("resolve user %q: %w", uid, err)
		}
		if user == nil {
			return nil, fmt.Errorf("%w: uid %q not found in account system", ErrInvalid, uid)
		}
	}

	if req.AsApportionPreset && (req.PresetTitle == "" || req.PresetOrgID == "") {
		return nil, fmt.Errorf("%w: preset title and organization are required to save a preset", ErrInvalid)
	}

	return &ValidatedBill{
		Bill: models.Bill{
			Title:        req.Title,
			Description:  req.Description,
			TradeTime:    tradeTime,
			Price:        price,
			PayerUID:     req.Party,
			Counterparty: req.Counterparty,
		},
		Apportionment: models.Apportionment{
			Method: method,
			Values: values,
		},
		SavePreset:  req.AsApportionPreset,
		PresetName:  req.PresetTitle,
		PresetOrgID: req.PresetOrgID,
	}, nil
}
