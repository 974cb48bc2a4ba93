package models

// Product представляет товар продавца на витрине
type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`               // цена в минимальных единицах валюты (центы)
	SalePrice  *int64 `json:"salePrice,omitempty"` // цена со скидкой, если задана
	Stock      int    `json:"stock"`               // остаток на складе, всегда >= 0
	VendorID   int64  `json:"vendorId"`
	CategoryID int64  `json:"categoryId"`
	Deleted    bool   `json:"-"`
}

// EffectivePrice возвращает цену, по которой товар продаётся сейчас
func (p *Product) EffectivePrice() int64 {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}
