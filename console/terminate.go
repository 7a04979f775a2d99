package console

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/entcache/dialog"
	"github.com/unkn0wn-root/entcache/form"
	"github.com/unkn0wn-root/entcache/mutation"
)

const (
	terminateField = "terminateSubscription"

	terminateDoc = `mutation terminateCustomerSubscription($input: TerminateSubscriptionInput!) {
  terminateSubscription(input: $input) {
    id
    customer {
      id
      activeSubscriptionCount
    }
  }
}`

	KeyTerminateTitle    = "text_62d7f6178ec94cd09370e2f3"
	KeyTerminateBody     = "text_62d7f6178ec94cd09370e313"
	KeyTerminateContinue = "text_62d7f6178ec94cd09370e351"
	KeyTerminateSuccess  = "text_62d953aa13c166a6a24cbaf4"
)

var TerminateOperation = mutation.Operation{
	Name:       "terminateCustomerSubscription",
	Field:      terminateField,
	Document:   terminateDoc,
	Refetch:    []string{QueryCustomerSubsForList},
	SuccessKey: KeyTerminateSuccess,
}

// SubscriptionInfo is the context the terminate dialog opens with.
type SubscriptionInfo struct {
	ID   string
	Name string
}

type TerminateDialog = dialog.Shell[SubscriptionInfo, mutation.Outcome]

// TerminateSubscriptionDialog builds a fresh dialog instance. It has no
// inputs; confirming terminates the subscription it was opened for.
func (c *Console) TerminateSubscriptionDialog() (*TerminateDialog, error) {
	var shell *TerminateDialog
	f, err := form.New(nil, func(ctx context.Context, _ map[string]string) (mutation.Outcome, error) {
		info, ok := shell.Context()
		if !ok || info.ID == "" {
			return mutation.Outcome{}, errors.New("console: no subscription to terminate")
		}
		return c.TerminateSubscription(ctx, info.ID)
	})
	if err != nil {
		return nil, err
	}
	shell = dialog.New[SubscriptionInfo, mutation.Outcome]("terminate-subscription", f, c.log)
	return shell, nil
}

// TerminateSubscription runs the mutation directly, without a dialog.
func (c *Console) TerminateSubscription(ctx context.Context, subscriptionID string) (mutation.Outcome, error) {
	return c.runner.Run(ctx, TerminateOperation, map[string]any{
		"input": map[string]any{"id": subscriptionID},
	})
}

// TerminateTexts are the localized strings of the terminate dialog.
type TerminateTexts struct {
	Title, Body, Continue string
}

func (c *Console) TerminateTexts(info SubscriptionInfo) TerminateTexts {
	return TerminateTexts{
		Title:    c.catalog.Translate(KeyTerminateTitle, nil),
		Body:     c.catalog.Translate(KeyTerminateBody, map[string]any{"subscriptionName": info.Name}),
		Continue: c.catalog.Translate(KeyTerminateContinue, nil),
	}
}
