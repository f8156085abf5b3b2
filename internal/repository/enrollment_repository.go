package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/example/facegate/internal/descriptor"
)

// EnrolledDescriptor is one stored face embedding for a registered
// identity. Identities may carry multiple enrollment samples.
type EnrolledDescriptor struct {
	ID          uint      `gorm:"primaryKey"`
	IdentityKey string    `gorm:"column:identity_key;index;size:64"`
	Embedding   []byte    `gorm:"column:embedding"`
	Active      bool      `gorm:"column:active;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (EnrolledDescriptor) TableName() string {
	return "enrolled_descriptors"
}

// EnrollmentRepository reads the enrolled-descriptor table owned by the
// identity-directory collaborator.
type EnrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository creates a new repository instance.
func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// AutoMigrate ensures the enrollment schema is available.
func (r *EnrollmentRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&EnrolledDescriptor{})
}

// LoadActiveDescriptors returns the decoded embeddings of every active
// identity, grouped by identity key. Rows whose blob does not decode
// are skipped rather than failing the whole snapshot load.
func (r *EnrollmentRepository) LoadActiveDescriptors(ctx context.Context) (map[string][]descriptor.Descriptor, error) {
	var rows []EnrolledDescriptor
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("identity_key, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	byIdentity := make(map[string][]descriptor.Descriptor, len(rows))
	for _, row := range rows {
		d, err := DecodeEmbedding(row.Embedding)
		if err != nil {
			continue
		}
		byIdentity[row.IdentityKey] = append(byIdentity[row.IdentityKey], d)
	}
	return byIdentity, nil
}

// EncodeEmbedding serializes a descriptor as little-endian float32s.
func EncodeEmbedding(d descriptor.Descriptor) []byte {
	buf := make([]byte, 4*descriptor.Size)
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding deserializes a descriptor blob.
func DecodeEmbedding(blob []byte) (descriptor.Descriptor, error) {
	var d descriptor.Descriptor
	if len(blob) != 4*descriptor.Size {
		return d, fmt.Errorf("embedding blob has %d bytes, want %d", len(blob), 4*descriptor.Size)
	}
	for i := range d {
		d[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return d, nil
}
