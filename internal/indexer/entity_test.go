package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

func definition(t *testing.T, name string) Definition {
	t.Helper()
	for _, def := range Definitions("shop") {
		if def.Name == name {
			return def
		}
	}
	t.Fatalf("no definition %q", name)
	return Definition{}
}

func newTestEntity(t *testing.T, name string, store *memStore, backend *memBackend, batch int) *Entity {
	t.Helper()
	e, err := NewEntity(definition(t, name), store, backend, batch)
	require.NoError(t, err)
	return e
}

func TestEntity_UpdateTracksOnlyDeclaredFields(t *testing.T) {
	e := newTestEntity(t, PaymentMethodIndexer, newMemStore(), newMemBackend(), 10)
	snap := domain.Snapshot{LanguageID: "en"}

	msgs := e.Update(domain.WriteEvent{
		Entity:  "payment_method",
		Context: snap,
		Changes: []domain.Change{
			{ID: "pm1", Fields: []string{"updated_at"}},
			{ID: "pm2", Fields: []string{"name", "updated_at"}},
			{ID: "pm3", Deleted: true},
			{ID: "pm2", Fields: []string{"name"}},
		},
	})
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, domain.KindIncremental, msg.Kind)
	assert.Equal(t, PaymentMethodIndexer, msg.Indexer)
	assert.Equal(t, "shop_payment_method", msg.Index)
	assert.Equal(t, []string{"pm2", "pm3"}, msg.IDs)
	assert.Equal(t, snap, msg.Context)
	require.NoError(t, msg.Validate())

	assert.Nil(t, e.Update(domain.WriteEvent{
		Entity:  "payment_method",
		Changes: []domain.Change{{ID: "pm1", Fields: []string{"updated_at"}}},
	}), "a field missing from the document must not trigger a re-index")

	assert.Nil(t, e.Update(domain.WriteEvent{
		Entity:  "product",
		Changes: []domain.Change{{ID: "p1", Fields: []string{"name"}}},
	}))
}

func TestEntity_UpdateTracksEveryDocumentField(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	store.put("payment_method", "pm1", map[string]any{"name": "Invoice", "active": true, "position": float64(1)})
	e := newTestEntity(t, PaymentMethodIndexer, store, backend, 10)
	ctx := context.Background()

	_, err := e.Handle(ctx, domain.NewIncremental(PaymentMethodIndexer, "", []string{"pm1"}, domain.Snapshot{}, nil))
	require.NoError(t, err)

	tests := []struct {
		field string
		value any
		want  any
	}{
		{field: "active", value: false, want: false},
		{field: "position", value: float64(7), want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			store.mu.Lock()
			store.rows["payment_method"]["pm1"][tt.field] = tt.value
			store.mu.Unlock()

			msgs := e.Update(domain.WriteEvent{
				Entity:  "payment_method",
				Changes: []domain.Change{{ID: "pm1", Fields: []string{tt.field}}},
			})
			require.Len(t, msgs, 1)
			for _, msg := range msgs {
				_, err := e.Handle(ctx, msg)
				require.NoError(t, err)
			}
			assert.EqualValues(t, tt.want, backend.snapshot("shop_payment_method")["pm1"][tt.field])
		})
	}
}

func TestEntity_UpdateFansOutPerIndexedLanguage(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	store.put("category", "c1", map[string]any{
		"name":    map[string]any{"de": "Kleidung", "en": "Clothes", "default": "Clothing"},
		"visible": true,
	})
	ctx := context.Background()

	var def Definition
	for _, d := range Definitions("shop", "de", "en") {
		if d.Name == CategoryIndexer {
			def = d
		}
	}
	e, err := NewEntity(def, store, backend, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "en"}, e.Languages())

	// full reindex under "de"
	_, err = e.Handle(ctx, domain.NewIncremental(CategoryIndexer, "", []string{"c1"}, domain.Snapshot{LanguageID: "de"}, nil))
	require.NoError(t, err)
	require.Equal(t, "Kleidung", backend.snapshot("shop_category")["c1-de"]["name"])

	store.put("category", "c1", map[string]any{
		"name":    map[string]any{"de": "Mode", "en": "Fashion", "default": "Fashion"},
		"visible": true,
	})
	msgs := e.Update(domain.WriteEvent{
		Entity:  "category",
		Changes: []domain.Change{{ID: "c1", Fields: []string{"name"}}},
	})
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		require.NoError(t, msg.Validate())
		_, err := e.Handle(ctx, msg)
		require.NoError(t, err)
	}

	docs := backend.snapshot("shop_category")
	assert.Equal(t, "Mode", docs["c1-de"]["name"])
	assert.Equal(t, "Fashion", docs["c1-en"]["name"])
	assert.NotContains(t, docs, "c1", "no document outside the indexed languages")
	assert.Len(t, docs, 2)

	// a write made in one language still refreshes every indexed one
	msgs = e.Update(domain.WriteEvent{
		Entity:  "category",
		Context: domain.Snapshot{LanguageID: "fr", VersionID: "live"},
		Changes: []domain.Change{{ID: "c1", Fields: []string{"visible"}}},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.Snapshot{LanguageID: "de", VersionID: "live"}, msgs[0].Context)
	assert.Equal(t, domain.Snapshot{LanguageID: "en", VersionID: "live"}, msgs[1].Context)
}

func TestEntity_HandleUpsertsAndRemovesVanished(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	store.put("product", "p1", map[string]any{
		"name":         map[string]any{"en": "Red Shirt", "default": "Rotes Hemd"},
		"price":        19.9,
		"stock":        float64(3),
		"active":       true,
		"manufacturer": "Acme",
		"category_ids": []any{"c1", "c2"},
	})
	require.NoError(t, backend.BulkUpsert(context.Background(), "shop_product", []domain.Document{{ID: "p2", Source: map[string]any{}}}))

	e := newTestEntity(t, ProductIndexer, store, backend, 10)
	msg := domain.NewIncremental(ProductIndexer, "shop_product", []string{"p1", "p2"}, domain.Snapshot{LanguageID: "en"}, nil)

	res, err := e.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, HandleResult{Upserted: 1, Deleted: 1}, res)

	docs := backend.snapshot("shop_product")
	require.Len(t, docs, 1)
	p1 := docs["p1"]
	assert.Equal(t, "Red Shirt", p1["name"])
	assert.Equal(t, true, p1["available"])
	assert.Equal(t, []string{"c1", "c2"}, p1["category_ids"])
	assert.Equal(t, []string{"red", "shirt", "acme"}, p1["keywords"])
}

func TestEntity_HandleHonoursSkippedEnrichers(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	store.put("product", "p1", map[string]any{"name": "Blue Mug"})

	e := newTestEntity(t, ProductIndexer, store, backend, 10)
	msg := domain.NewIncremental(ProductIndexer, "shop_product", []string{"p1"}, domain.Snapshot{}, []string{ProductKeywordsEnricher})

	_, err := e.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.NotContains(t, backend.snapshot("shop_product")["p1"], "keywords")
}

func TestEntity_HandleUsesCompositeDocumentKeys(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	store.put("category", "c1", map[string]any{
		"name":       map[string]any{"de": "Kleidung", "default": "Clothing"},
		"breadcrumb": []any{map[string]any{"de": "Start", "default": "Home"}, map[string]any{"de": "Kleidung", "default": "Clothing"}},
		"visible":    true,
	})
	ctx := context.Background()
	snap := domain.Snapshot{LanguageID: "de"}
	require.NoError(t, backend.BulkUpsert(ctx, "shop_category", []domain.Document{{ID: "c9-de", Source: map[string]any{}}}))

	e := newTestEntity(t, CategoryIndexer, store, backend, 10)
	_, err := e.Handle(ctx, domain.NewIncremental(CategoryIndexer, "", []string{"c1", "c9"}, snap, nil))
	require.NoError(t, err)

	docs := backend.snapshot("shop_category")
	require.Contains(t, docs, "c1-de")
	assert.NotContains(t, docs, "c9-de", "vanished category must be removed under its composite key")
	assert.Equal(t, "Kleidung", docs["c1-de"]["name"])
	assert.Equal(t, "Start > Kleidung", docs["c1-de"]["breadcrumb_text"])
}

func TestEntity_HandleTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	backend := newMemBackend()
	for _, id := range []string{"a", "b", "c"} {
		store.put("payment_method", id, map[string]any{"name": "pm " + id, "active": true})
	}
	e := newTestEntity(t, PaymentMethodIndexer, store, backend, 10)
	msg := domain.NewIncremental(PaymentMethodIndexer, "shop_payment_method", []string{"a", "b", "c", "d"}, domain.Snapshot{}, nil)

	_, err := e.Handle(context.Background(), msg)
	require.NoError(t, err)
	once := backend.snapshot("shop_payment_method")

	_, err = e.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, once, backend.snapshot("shop_payment_method"))
}

func TestEntity_IterateWalksCorpus(t *testing.T) {
	store := newMemStore()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.put("payment_method", id, map[string]any{})
	}
	e := newTestEntity(t, PaymentMethodIndexer, store, newMemBackend(), 2)
	ctx := context.Background()

	total, err := e.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	var offset *domain.Offset
	var got []string
	var lastFlags []bool
	for {
		batch, err := e.Iterate(ctx, offset)
		require.NoError(t, err)
		if batch == nil {
			break
		}
		got = append(got, batch.IDs...)
		lastFlags = append(lastFlags, batch.Last)
		offset = batch.Offset
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, []bool{false, false, true}, lastFlags)
}

func TestEntity_IterateDoesNotCount(t *testing.T) {
	store := newMemStore()
	for _, id := range []string{"a", "b", "c"} {
		store.put("payment_method", id, map[string]any{})
	}
	e := newTestEntity(t, PaymentMethodIndexer, store, newMemBackend(), 2)

	batch, err := e.Iterate(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, batch)
	batch, err = e.Iterate(context.Background(), batch.Offset)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, []string{"c"}, batch.IDs)
	assert.Zero(t, store.counts.Load(), "batch iteration must not count the collection")
}

func TestNewEntity_ValidatesDefinition(t *testing.T) {
	_, err := NewEntity(Definition{Name: "x"}, newMemStore(), newMemBackend(), 10)
	assert.Error(t, err)

	def := definition(t, ProductIndexer)
	def.Build = nil
	_, err = NewEntity(def, newMemStore(), newMemBackend(), 10)
	assert.Error(t, err)
}
