package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogPaging(t *testing.T) {
	s := newMemStore()
	for i := int64(1); i <= 25; i++ {
		s.addProduct(i, fmt.Sprintf("Item %d", i), 10, 0, 1)
	}
	svc := NewCatalogService(s, 10, 20)
	ctx := context.Background()

	page, err := svc.ListProducts(ctx, &ProductListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Products, 10)

	page, err = svc.ListProducts(ctx, &ProductListRequest{Page: 2, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 20, page.Limit)
	require.Len(t, page.Products, 5)
	assert.Equal(t, int64(21), page.Products[0].ID)

	page, err = svc.ListProducts(ctx, &ProductListRequest{Keyword: "item 1"})
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
}

func TestCatalogGetProduct(t *testing.T) {
	s := newMemStore()
	s.addProduct(1, "Phone", 100, 0, 1)
	svc := NewCatalogService(s, 10, 20)

	p, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Phone", p.Name)

	_, err = svc.GetProduct(context.Background(), 2)
	assert.ErrorIs(t, err, ErrProductNotFound)
}
