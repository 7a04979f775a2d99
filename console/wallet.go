package console

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/entcache/dialog"
	"github.com/unkn0wn-root/entcache/form"
	"github.com/unkn0wn-root/entcache/mutation"
)

const (
	createWalletField = "createCustomerWallet"

	createWalletDoc = `mutation createCustomerWallet($input: CreateCustomerWalletInput!) {
  createCustomerWallet(input: $input) {
    id
  }
}`

	KeyWalletTitle       = "text_62d18855b22699e5cf55f871"
	KeyWalletDescription = "text_62d18855b22699e5cf55f873"
	KeyWalletCancel      = "text_62d18855b22699e5cf55f89d"
	KeyWalletSubmit      = "text_62d18855b22699e5cf55f89f"
	KeyWalletPaidHint    = "text_62d18855b22699e5cf55f88b"
	KeyWalletGrantedHint = "text_62d18855b22699e5cf55f893"
	KeyWalletTotal       = "text_630df52b4f665b2452363ae2"
	KeyWalletDateFloor   = "text_630ccd87b251590eaa5f9831"
	KeyWalletSuccess     = "text_62d6d5739e4eee96c1afaee8"
)

// Wallet form fields.
const (
	FieldName           = "name"
	FieldRateAmount     = "rateAmount"
	FieldPaidCredits    = "paidCredits"
	FieldGrantedCredits = "grantedCredits"
	FieldExpirationDate = "expirationDate"
)

var CreateWalletOperation = mutation.Operation{
	Name:       "createCustomerWallet",
	Field:      createWalletField,
	Document:   createWalletDoc,
	Refetch:    []string{QueryGetCustomer, QueryCustomerWallets},
	SuccessKey: KeyWalletSuccess,
}

// WalletTask is the context the add-wallet dialog opens with.
type WalletTask struct {
	CustomerID string
	Currency   string // ISO 4217, e.g. "USD"
}

type WalletDialog = dialog.Shell[WalletTask, mutation.Outcome]

// WalletFields is the add-wallet form. now is read on every validation.
func WalletFields(now func() time.Time) []form.Field {
	credits := []form.Formatter{form.PositiveNumber, form.Decimal(2)}
	return []form.Field{
		{Name: FieldName},
		{Name: FieldRateAmount, Initial: "1.00", Rules: []form.Rule{form.Required, form.Numeric}, Format: credits},
		{
			Name:      FieldPaidCredits,
			Rules:     []form.Rule{form.NumericOrSibling(FieldGrantedCredits)},
			Format:    credits,
			DependsOn: []string{FieldGrantedCredits},
		},
		{
			Name:      FieldGrantedCredits,
			Rules:     []form.Rule{form.NumericOrSibling(FieldPaidCredits)},
			Format:    credits,
			DependsOn: []string{FieldPaidCredits},
		},
		{Name: FieldExpirationDate, Rules: []form.Rule{form.NotBefore(form.Yesterday(now))}},
	}
}

// WalletVariables builds the createCustomerWallet input. Empty credit
// fields are sent as "0".
func WalletVariables(customerID string, v map[string]string) map[string]any {
	input := map[string]any{
		"customerId":     customerID,
		"name":           v[FieldName],
		"rateAmount":     v[FieldRateAmount],
		"paidCredits":    zeroIfEmpty(v[FieldPaidCredits]),
		"grantedCredits": zeroIfEmpty(v[FieldGrantedCredits]),
	}
	if d := v[FieldExpirationDate]; d != "" {
		input[FieldExpirationDate] = d
	}
	return map[string]any{"input": input}
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// AddWalletDialog builds a fresh add-wallet dialog instance.
func (c *Console) AddWalletDialog() (*WalletDialog, error) {
	var shell *WalletDialog
	f, err := form.New(WalletFields(c.now), func(ctx context.Context, v map[string]string) (mutation.Outcome, error) {
		task, ok := shell.Context()
		if !ok || task.CustomerID == "" {
			return mutation.Outcome{}, errors.New("console: no customer to add a wallet to")
		}
		return c.runner.Run(ctx, CreateWalletOperation, WalletVariables(task.CustomerID, v))
	})
	if err != nil {
		return nil, err
	}
	shell = dialog.New[WalletTask, mutation.Outcome]("add-wallet", f, c.log)
	return shell, nil
}

// TotalCredits is paid + granted; non-numeric values count as zero.
func TotalCredits(v map[string]string) float64 {
	return form.Number(v[FieldPaidCredits]) + form.Number(v[FieldGrantedCredits])
}

// WalletTexts are the derived strings the add-wallet dialog shows.
type WalletTexts struct {
	Title       string
	SubmitLabel string
	PaidHint    string
	GrantedHint string
	Total       string
	DateFloor   string
}

// WalletTexts renders the labels for the current form values. Credit hints
// show credits × rate in the task currency.
func (c *Console) WalletTexts(task WalletTask, v map[string]string) (WalletTexts, error) {
	total := TotalCredits(v)
	rate := form.Number(v[FieldRateAmount])

	paid, err := c.catalog.FormatMoney(form.Number(v[FieldPaidCredits])*rate, task.Currency)
	if err != nil {
		return WalletTexts{}, err
	}
	granted, err := c.catalog.FormatMoney(form.Number(v[FieldGrantedCredits])*rate, task.Currency)
	if err != nil {
		return WalletTexts{}, err
	}
	floor := c.now().Add(-24 * time.Hour).Format("Jan. 02, 2006")

	return WalletTexts{
		Title:       c.catalog.Translate(KeyWalletTitle, nil),
		SubmitLabel: c.catalog.Translate(KeyWalletSubmit, nil, total),
		PaidHint:    c.catalog.Translate(KeyWalletPaidHint, map[string]any{FieldPaidCredits: paid}),
		GrantedHint: c.catalog.Translate(KeyWalletGrantedHint, map[string]any{FieldGrantedCredits: granted}),
		Total:       c.catalog.Translate(KeyWalletTotal, map[string]any{"totalCreditCount": total}, total),
		DateFloor:   c.catalog.Translate(KeyWalletDateFloor, map[string]any{"date": floor}),
	}, nil
}
