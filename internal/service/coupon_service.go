package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const generatedCouponLength = 8

var (
	minCouponDiscount = decimal.NewFromInt(1)
	maxCouponDiscount = decimal.NewFromInt(100)
)

// CouponService manages discount codes
type CouponService struct {
	store  CouponStore
	logger *zap.Logger
	now    func() time.Time
}

// NewCouponService creates a new coupon service
func NewCouponService(store CouponStore) *CouponService {
	return &CouponService{store: store, logger: util.GetLogger(), now: time.Now}
}

// CreateCouponRequest creates a coupon. Name is generated when empty.
type CreateCouponRequest struct {
	Name      string          `json:"name" binding:"omitempty,alphanum,min=3,max=50"`
	Discount  decimal.Decimal `json:"discount"`
	ExpiredAt time.Time       `json:"expiredAt" binding:"required"`
}

// UpdateCouponRequest changes the discount or expiry of a coupon
type UpdateCouponRequest struct {
	Discount  *decimal.Decimal `json:"discount"`
	ExpiredAt *time.Time       `json:"expiredAt"`
}

// Create stores a new coupon
func (s *CouponService) Create(ctx context.Context, adminID int64, req *CreateCouponRequest) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Create")
	defer span.End()

	if err := validateDiscount(req.Discount); err != nil {
		return nil, err
	}
	if !req.ExpiredAt.After(s.now()) {
		return nil, ErrInvalidRequest.With("expiredAt must be in the future", nil)
	}

	name := strings.ToUpper(req.Name)
	if name == "" {
		name = generateCouponName()
	}

	c := &models.Coupon{
		Name:      name,
		Discount:  req.Discount,
		ExpiredAt: req.ExpiredAt,
		CreatedBy: adminID,
	}
	if err := s.store.CreateCoupon(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrCouponExists
		}
		return nil, err
	}

	s.logger.Info("Coupon created", zap.String("coupon", c.Name), zap.Int64("user_id", adminID))
	return c, nil
}

// Update changes an unexpired coupon
func (s *CouponService) Update(ctx context.Context, code string, req *UpdateCouponRequest) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Update")
	defer span.End()

	c, err := s.get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.ValidAt(s.now()) {
		return nil, ErrCouponExpired
	}

	if req.Discount != nil {
		if err := validateDiscount(*req.Discount); err != nil {
			return nil, err
		}
		c.Discount = *req.Discount
	}
	if req.ExpiredAt != nil {
		if !req.ExpiredAt.After(s.now()) {
			return nil, ErrInvalidRequest.With("expiredAt must be in the future", nil)
		}
		c.ExpiredAt = *req.ExpiredAt
	}

	if err := s.store.UpdateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a coupon
func (s *CouponService) Delete(ctx context.Context, code string) error {
	if err := s.store.DeleteCoupon(ctx, strings.ToUpper(code)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCouponNotFound
		}
		return err
	}
	return nil
}

// Get returns a coupon by code
func (s *CouponService) Get(ctx context.Context, code string) (*models.Coupon, error) {
	return s.get(ctx, code)
}

// List returns every coupon
func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	return s.store.ListCoupons(ctx)
}

func (s *CouponService) get(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := s.store.GetCouponByName(ctx, strings.ToUpper(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCouponNotFound
	}
	return c, err
}

func validateDiscount(d decimal.Decimal) error {
	if d.LessThan(minCouponDiscount) || d.GreaterThan(maxCouponDiscount) {
		return ErrInvalidRequest.With("discount must be between 1 and 100", nil)
	}
	return nil
}

func generateCouponName() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:generatedCouponLength])
}
