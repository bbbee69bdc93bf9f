package category

import "errors"

var (
	ErrNotFound  = errors.New("category not found")
	ErrNameTaken = errors.New("category name already exists")
)

// Category группирует товары витрины. На неё ссылаются товары и наборы скидок.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
