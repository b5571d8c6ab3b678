package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/model"
)

// decrementByReload перечитывает товар, списывает остаток позиции и сохраняет товар.
// Вызывается после сохранения заказа, поэтому ошибки только логируются.
func (s *Service) decrementByReload(ctx context.Context, o *model.Order, it model.OrderItem) {
	p, err := s.repo.GetProductByID(ctx, it.ProductID)
	if err != nil {
		s.inventoryInconsistency(o, it, "reload product", err)
		return
	}

	switch {
	case it.VariantID != nil:
		idx := p.VariantByID(*it.VariantID)
		if idx < 0 {
			s.logger.Error("inventory inconsistency: variant disappeared",
				zap.String("order_number", o.Number),
				zap.String("product_id", it.ProductID.String()),
				zap.String("variant_id", it.VariantID.String()))
			return
		}
		p.Variants[idx].Stock -= it.Quantity
	case len(p.Variants) == 0:
		p.BaseStock -= it.Quantity
	}
	p.SalesCount += it.Quantity
	p.RefreshStatus()

	if err := s.repo.SaveProduct(ctx, p); err != nil {
		s.inventoryInconsistency(o, it, "save product", err)
	}
}

func (s *Service) inventoryInconsistency(o *model.Order, it model.OrderItem, op string, err error) {
	s.logger.Error("inventory inconsistency: "+op,
		zap.String("order_number", o.Number),
		zap.String("product_id", it.ProductID.String()),
		zap.Int("quantity", it.Quantity),
		zap.Error(err))
}

// releaseStock возвращает зарезервированные остатки после неудачного оформления.
func (s *Service) releaseStock(ctx context.Context, orderID string, lines []stockLine) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range lines {
		if err := s.repo.AdjustStock(ctx, l.productID, l.variantID, l.quantity); err != nil {
			s.logger.Error("release reserved stock",
				zap.String("order_id", orderID),
				zap.String("product_id", l.productID.String()),
				zap.Int("quantity", l.quantity),
				zap.Error(err))
		}
	}
}

// restoreOrderStock возвращает на склад остатки отменённого заказа.
// Позиции без варианта у товаров с вариантами не списывались и не возвращаются.
func (s *Service) restoreOrderStock(ctx context.Context, o *model.Order) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range o.Items {
		if it.VariantID == nil {
			p, err := s.repo.GetProductByID(ctx, it.ProductID)
			if err != nil {
				s.inventoryInconsistency(o, it, "restore stock", err)
				continue
			}
			if len(p.Variants) > 0 {
				continue
			}
		}
		if err := s.repo.AdjustStock(ctx, it.ProductID, it.VariantID, it.Quantity); err != nil {
			s.inventoryInconsistency(o, it, "restore stock", err)
		}
	}
}
