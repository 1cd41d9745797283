package service

import "github.com/example/craftshop/pkg/models"

// Authorize lets the owner or an admin read an order.
func Authorize(requester models.Identity, order *models.Order) error {
	if order.OwnedBy(requester.ID) || requester.IsAdmin {
		return nil
	}
	return models.ErrAccessDenied
}
