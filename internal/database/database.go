package database

import (
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/attrpipe/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath+"?_journal=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.EntityType{},
		&entities.Entity{},
		&entities.Attribute{},
		&entities.AttributeOption{},
		&entities.AttributeValue{},
		&entities.InputValue{},
		&entities.Pipeline{},
		&entities.PipelineModule{},
		&entities.PipelineRun{},
		&entities.SyncRun{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) GetEntityTypeByName(name string) (*entities.EntityType, error) {
	var entityType entities.EntityType
	err := d.DB.Where("name = ?", name).First(&entityType).Error
	if err != nil {
		return nil, err
	}
	return &entityType, nil
}

func (d *Database) GetOrCreateEntityType(name string) (*entities.EntityType, error) {
	var entityType entities.EntityType
	err := d.DB.Where("name = ?", name).First(&entityType).Error
	if err == gorm.ErrRecordNotFound {
		entityType = entities.EntityType{Name: name}
		if err := d.DB.Create(&entityType).Error; err != nil {
			return nil, err
		}
		log.Printf("Created entity type: %s", name)
		return &entityType, nil
	}
	if err != nil {
		return nil, err
	}
	return &entityType, nil
}

func (d *Database) CreateEntity(entityTypeID uint, externalID string) (*entities.Entity, error) {
	entity := &entities.Entity{
		EntityTypeID: entityTypeID,
		ExternalID:   externalID,
	}
	if err := d.DB.Create(entity).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

func (d *Database) GetEntityByID(id uint) (*entities.Entity, error) {
	var entity entities.Entity
	err := d.DB.First(&entity, id).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (d *Database) GetEntitiesByType(entityTypeID uint) ([]entities.Entity, error) {
	var list []entities.Entity
	err := d.DB.Where("entity_type_id = ?", entityTypeID).Order("id ASC").Find(&list).Error
	return list, err
}

func (d *Database) CreateAttribute(attr *entities.Attribute) error {
	return d.DB.Create(attr).Error
}

func (d *Database) GetAttributeByID(id uint) (*entities.Attribute, error) {
	var attr entities.Attribute
	err := d.DB.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&attr, id).Error
	if err != nil {
		return nil, err
	}
	return &attr, nil
}

func (d *Database) GetAttributeByName(entityTypeID uint, name string) (*entities.Attribute, error) {
	var attr entities.Attribute
	err := d.DB.Where("entity_type_id = ? AND name = ?", entityTypeID, name).First(&attr).Error
	if err != nil {
		return nil, err
	}
	return &attr, nil
}

func (d *Database) GetAttributesByType(entityTypeID uint) ([]entities.Attribute, error) {
	var attrs []entities.Attribute
	err := d.DB.Where("entity_type_id = ?", entityTypeID).Order("id ASC").Find(&attrs).Error
	return attrs, err
}

// GetAttributesBySyncMode returns all attributes of an entity type carrying
// the given sync mode, options preloaded in position order.
func (d *Database) GetAttributesBySyncMode(entityTypeID uint, mode entities.SyncMode) ([]entities.Attribute, error) {
	var attrs []entities.Attribute
	err := d.DB.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("entity_type_id = ? AND sync_mode = ?", entityTypeID, mode).
		Order("id ASC").Find(&attrs).Error
	return attrs, err
}

// ReplaceOptions swaps an enum attribute's full allowed-value set in one
// transaction. The external catalog owns option sets for pull-mode
// attributes, so local options not present in the new set are discarded.
func (d *Database) ReplaceOptions(attributeID uint, options []entities.AttributeOption) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("attribute_id = ?", attributeID).Delete(&entities.AttributeOption{}).Error; err != nil {
			return fmt.Errorf("failed to clear options: %w", err)
		}
		for i := range options {
			options[i].ID = 0
			options[i].AttributeID = attributeID
			options[i].Position = i
			if err := tx.Create(&options[i]).Error; err != nil {
				return fmt.Errorf("failed to create option %q: %w", options[i].Value, err)
			}
		}
		return nil
	})
}
