package models

import (
	"context"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
)

// Read-through caches for the HTTP read paths. The costing path inside
// RecordSale never reads these; cost snapshots come from locked db rows.
// Writers invalidate in UpsertMaterial / UpsertProduct.

func GetMaterialCached(ctx context.Context, id int) (*Material, error) {
	cached, err := utils.RetrieveRedis[Material](id)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "GetMaterialCached", "Reading material cache", id, err)
	}
	if cached != nil {
		return cached, nil
	}

	material, err := GetMaterial(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Material](material, id); err != nil {
		config.LogError(config.GetLogger(), "models", "GetMaterialCached", "Storing material cache", id, err)
	}
	return material, nil
}

func ListMaterialsCached(ctx context.Context) ([]*Material, error) {
	cached, err := utils.RetrieveRedisList[Material]()
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ListMaterialsCached", "Reading material list cache", nil, err)
	}
	if cached != nil {
		return cached, nil
	}

	materials, err := GetMaterials(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[Material](materials); err != nil {
		config.LogError(config.GetLogger(), "models", "ListMaterialsCached", "Storing material list cache", nil, err)
	}
	return materials, nil
}

func GetProductCached(ctx context.Context, id int) (*Product, error) {
	cached, err := utils.RetrieveRedis[Product](id)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "GetProductCached", "Reading product cache", id, err)
	}
	if cached != nil {
		return cached, nil
	}

	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Product](product, id); err != nil {
		config.LogError(config.GetLogger(), "models", "GetProductCached", "Storing product cache", id, err)
	}
	return product, nil
}

func ListProductsCached(ctx context.Context) ([]*Product, error) {
	cached, err := utils.RetrieveRedisList[Product]()
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ListProductsCached", "Reading product list cache", nil, err)
	}
	if cached != nil {
		return cached, nil
	}

	products, err := GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[Product](products); err != nil {
		config.LogError(config.GetLogger(), "models", "ListProductsCached", "Storing product list cache", nil, err)
	}
	return products, nil
}
