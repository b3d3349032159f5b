package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiovate/Test-Backend/internal/model"
)

type CustomerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	// Ensure заводит граничную запись клиента при первом обращении.
	Ensure(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	WithTx(tx *gorm.DB) CustomerRepository
}

type GormCustomerRepository struct {
	db *gorm.DB
}

func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

func (r *GormCustomerRepository) WithTx(tx *gorm.DB) CustomerRepository {
	return &GormCustomerRepository{db: tx}
}

func (r *GormCustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormCustomerRepository) Ensure(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	c, err := r.GetByID(ctx, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// параллельный запрос мог успеть создать запись
	created := model.Customer{ID: id}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
