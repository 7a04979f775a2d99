// Package console wires the billing console tasks: terminate a customer
// subscription, add a wallet to a customer, and the customer reads whose
// cached results those tasks keep consistent.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/entcache"
	"github.com/unkn0wn-root/entcache/gateway"
	"github.com/unkn0wn-root/entcache/i18n"
	"github.com/unkn0wn-root/entcache/mutation"
	"github.com/unkn0wn-root/entcache/notify"
	"github.com/unkn0wn-root/entcache/reconcile"
)

// Query names double as refetch list entries.
const (
	QueryGetCustomer         = "getCustomer"
	QueryCustomerWallets     = "getCustomerWalletList"
	QueryCustomerSubsForList = "getCustomerSubscriptionForList"
)

const getCustomerDoc = `query getCustomer($id: ID!) {
  customer(id: $id) {
    id
    name
    externalId
    currency
    activeSubscriptionCount
  }
}`

const customerWalletsDoc = `query getCustomerWalletList($customerId: ID!, $page: Int, $limit: Int) {
  wallets(customerId: $customerId, page: $page, limit: $limit) {
    collection {
      id
      name
      status
      rateAmount
      creditsBalance
      balance
      expirationDate
    }
  }
}`

const customerSubscriptionsDoc = `query getCustomerSubscriptionForList($id: ID!) {
  customer(id: $id) {
    id
    subscriptions {
      id
      status
      name
      plan {
        id
        name
      }
    }
  }
}`

type Deps struct {
	Store      entcache.Store
	Gateway    mutation.Sender
	Reconciler *reconcile.Reconciler // nil => a new one over Store
	Notifier   notify.Notifier
	Catalog    *i18n.Catalog
	Logger     entcache.Logger
	Now        func() time.Time // nil => time.Now
}

type Console struct {
	store   entcache.Store
	send    mutation.Sender
	rec     *reconcile.Reconciler
	runner  *mutation.Runner
	catalog *i18n.Catalog
	log     entcache.Logger
	now     func() time.Time
}

func New(d Deps) (*Console, error) {
	if d.Store == nil {
		return nil, errors.New("console: store is required")
	}
	if d.Gateway == nil {
		return nil, errors.New("console: gateway is required")
	}
	if d.Catalog == nil {
		return nil, errors.New("console: catalog is required")
	}
	c := &Console{
		store:   d.Store,
		send:    d.Gateway,
		rec:     d.Reconciler,
		catalog: d.Catalog,
		log:     d.Logger,
		now:     d.Now,
	}
	if c.log == nil {
		c.log = entcache.NopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rec == nil {
		c.rec = reconcile.New(d.Store, c.log)
	}
	for field, rule := range rules() {
		if err := c.rec.Register(field, rule); err != nil {
			return nil, err
		}
	}
	c.runner = mutation.NewRunner(d.Gateway, c.rec, d.Notifier, c.log)
	return c, nil
}

func rules() map[string]reconcile.Rule {
	return map[string]reconcile.Rule{
		terminateField: {
			Type:   "Subscription",
			Effect: reconcile.Evict,
			Related: []reconcile.Relation{
				{Path: "customer", Type: "Customer", Fields: []string{"activeSubscriptionCount"}},
			},
		},
		// new wallets only show up through the refetch list
		createWalletField: {Type: "Wallet", Effect: reconcile.None},
	}
}

func (c *Console) Catalog() *i18n.Catalog { return c.catalog }

// Customer reads one customer through the cache.
func (c *Console) Customer(ctx context.Context, id string) (entcache.Snapshot, error) {
	items, err := c.query(ctx, QueryGetCustomer, getCustomerDoc, map[string]any{"id": id}, "customer", "Customer")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("console: customer %q not found", id)
	}
	return items[0], nil
}

// Wallets lists a customer's wallets through the cache.
func (c *Console) Wallets(ctx context.Context, customerID string) ([]entcache.Snapshot, error) {
	return c.query(ctx, QueryCustomerWallets, customerWalletsDoc,
		map[string]any{"customerId": customerID}, "wallets.collection", "Wallet")
}

// Subscriptions lists a customer's subscriptions through the cache.
func (c *Console) Subscriptions(ctx context.Context, customerID string) ([]entcache.Snapshot, error) {
	return c.query(ctx, QueryCustomerSubsForList, customerSubscriptionsDoc,
		map[string]any{"id": customerID}, "customer.subscriptions", "Subscription")
}

func (c *Console) query(ctx context.Context, name, doc string, vars map[string]any, path, typ string) ([]entcache.Snapshot, error) {
	load := func(ctx context.Context) ([]entcache.Snapshot, string, error) {
		res, err := c.send.Send(ctx, gateway.Request{Operation: name, Document: doc, Variables: vars})
		if err != nil {
			return nil, "", err
		}
		items, err := extract(res.Data, path)
		return items, typ, err
	}
	return c.store.Query(ctx, entcache.QueryKey{Name: name, Vars: vars}, load)
}

// extract reads the object or list of objects at a dot-separated path.
func extract(data map[string]any, path string) ([]entcache.Snapshot, error) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = next
	}
	switch v := cur[parts[len(parts)-1]].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []entcache.Snapshot{v}, nil
	case []any:
		out := make([]entcache.Snapshot, 0, len(v))
		for i, it := range v {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("console: %s[%d] is not an object", path, i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("console: %s has unexpected type %T", path, v)
	}
}
