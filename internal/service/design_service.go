package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/strandart/api/internal/client"
	"github.com/strandart/api/internal/model"
)

// ErrDesignNotFound covers both a missing design and a design owned by
// another user; callers can't tell the two apart.
var ErrDesignNotFound = errors.New("design not found")

const designTTL = 0 // designs are kept until deleted

// assetURLTTL is how long signed asset links stay valid
const assetURLTTL = time.Hour

// DesignService stores user designs in redis with an ownership filter on
// every operation. Image and sequence assets go to object storage when it is
// configured; otherwise mock CDN URLs are handed out.
type DesignService struct {
	redis   *redis.Client
	storage client.StorageClient
}

// NewDesignService creates a design service. storage may be nil.
func NewDesignService(redisClient *redis.Client, storage client.StorageClient) *DesignService {
	return &DesignService{
		redis:   redisClient,
		storage: storage,
	}
}

// Create stores a new design owned by userID
func (s *DesignService) Create(ctx context.Context, userID string, req *model.DesignCreateRequest) (*model.Design, error) {
	now := time.Now()
	design := &model.Design{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      req.Name,
		Params:    req.Params,
		CreatedAt: now,
		UpdatedAt: now,
	}

	imageURL, err := s.storeSourceImage(ctx, design, req.ImageData)
	if err != nil {
		return nil, err
	}
	design.ImageURL = imageURL

	if err := s.saveDesign(ctx, design); err != nil {
		return nil, fmt.Errorf("failed to save design: %w", err)
	}
	if err := s.redis.SAdd(ctx, userDesignsKey(userID), design.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to index design: %w", err)
	}

	return design, nil
}

// Get returns one of the user's designs with fresh asset links
func (s *DesignService) Get(ctx context.Context, userID, designID string) (*model.Design, error) {
	design, err := s.getOwned(ctx, userID, designID)
	if err != nil {
		return nil, err
	}
	s.refreshAssetURLs(ctx, design)
	return design, nil
}

// List returns all of the user's designs, newest first
func (s *DesignService) List(ctx context.Context, userID string) (*model.DesignListResponse, error) {
	ids, err := s.redis.SMembers(ctx, userDesignsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list designs: %w", err)
	}

	designs := make([]*model.Design, 0, len(ids))
	for _, id := range ids {
		design, err := s.getDesign(ctx, id)
		if err != nil {
			if errors.Is(err, ErrDesignNotFound) {
				// Index entry outlived the design; drop it.
				s.redis.SRem(ctx, userDesignsKey(userID), id)
				continue
			}
			return nil, err
		}
		if design.UserID != userID {
			continue
		}
		designs = append(designs, design)
	}

	sort.Slice(designs, func(i, j int) bool {
		return designs[i].CreatedAt.After(designs[j].CreatedAt)
	})

	return &model.DesignListResponse{Designs: designs, Total: len(designs)}, nil
}

// Update applies the non-nil fields of req to one of the user's designs. A
// sequence update also archives the sequence to object storage.
func (s *DesignService) Update(ctx context.Context, userID, designID string, req *model.DesignUpdateRequest) (*model.Design, error) {
	design, err := s.getOwned(ctx, userID, designID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		design.Name = *req.Name
	}
	if req.Params != nil {
		design.Params = *req.Params
	}
	if len(req.Sequence) > 0 {
		design.Sequence = req.Sequence
		design.SequenceURL = s.storeSequence(ctx, design, req.Sequence)
	}
	design.UpdatedAt = time.Now()

	if err := s.saveDesign(ctx, design); err != nil {
		return nil, fmt.Errorf("failed to save design: %w", err)
	}
	return design, nil
}

// Delete removes one of the user's designs and its stored assets
func (s *DesignService) Delete(ctx context.Context, userID, designID string) error {
	design, err := s.getOwned(ctx, userID, designID)
	if err != nil {
		return err
	}

	if err := s.redis.Del(ctx, designKey(designID)).Err(); err != nil {
		return fmt.Errorf("failed to delete design: %w", err)
	}
	s.redis.SRem(ctx, userDesignsKey(userID), designID)

	if s.storage != nil {
		// Asset cleanup is best effort; a stale object is not worth failing
		// the delete over.
		if err := s.storage.Delete(ctx, client.SourceImageKey(userID, designID)); err != nil {
			log.Printf("Failed to delete source image for design %s: %v", designID, err)
		}
		if design.SequenceURL != "" {
			if err := s.storage.Delete(ctx, client.SequenceKey(userID, designID)); err != nil {
				log.Printf("Failed to delete sequence for design %s: %v", designID, err)
			}
		}
	}

	return nil
}

// storeSourceImage uploads the decoded image when storage is configured and
// returns the asset URL; without storage a mock CDN URL is returned so the
// rest of the flow works in development.
func (s *DesignService) storeSourceImage(ctx context.Context, design *model.Design, imageData string) (string, error) {
	key := client.SourceImageKey(design.UserID, design.ID)
	if s.storage == nil {
		return "https://cdn.strandart.app/" + key, nil
	}

	raw, err := decodeImageData(imageData)
	if err != nil {
		return "", fmt.Errorf("invalid image data: %w", err)
	}

	url, err := s.storage.Upload(ctx, key, bytes.NewReader(raw), "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to upload source image: %w", err)
	}
	return url, nil
}

// storeSequence archives the winding sequence as JSON. Failures only cost the
// archive URL, not the update.
func (s *DesignService) storeSequence(ctx context.Context, design *model.Design, sequence []int) string {
	key := client.SequenceKey(design.UserID, design.ID)
	if s.storage == nil {
		return "https://cdn.strandart.app/" + key
	}

	data, err := json.Marshal(sequence)
	if err != nil {
		return ""
	}
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(data), "application/json")
	if err != nil {
		log.Printf("Failed to archive sequence for design %s: %v", design.ID, err)
		return ""
	}
	return url
}

// refreshAssetURLs swaps stored asset URLs for short-lived signed links when
// object storage is configured; the bucket stays private. A signing failure
// keeps the stored URL. Listings keep stored URLs to avoid a signing call per
// design.
func (s *DesignService) refreshAssetURLs(ctx context.Context, design *model.Design) {
	if s.storage == nil {
		return
	}
	if url, err := s.storage.SignedURL(ctx, client.SourceImageKey(design.UserID, design.ID), assetURLTTL); err == nil {
		design.ImageURL = url
	}
	if design.SequenceURL != "" {
		if url, err := s.storage.SignedURL(ctx, client.SequenceKey(design.UserID, design.ID), assetURLTTL); err == nil {
			design.SequenceURL = url
		}
	}
}

func (s *DesignService) getOwned(ctx context.Context, userID, designID string) (*model.Design, error) {
	design, err := s.getDesign(ctx, designID)
	if err != nil {
		return nil, err
	}
	if design.UserID != userID {
		return nil, ErrDesignNotFound
	}
	return design, nil
}

func (s *DesignService) saveDesign(ctx context.Context, design *model.Design) error {
	data, err := json.Marshal(design)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, designKey(design.ID), data, designTTL).Err()
}

func (s *DesignService) getDesign(ctx context.Context, designID string) (*model.Design, error) {
	data, err := s.redis.Get(ctx, designKey(designID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrDesignNotFound
		}
		return nil, err
	}

	var design model.Design
	if err := json.Unmarshal(data, &design); err != nil {
		return nil, err
	}
	return &design, nil
}

func designKey(id string) string { return "design:" + id }

func userDesignsKey(userID string) string { return "user:" + userID + ":designs" }

// decodeImageData accepts both bare base64 and data-URL payloads
func decodeImageData(imageData string) ([]byte, error) {
	if idx := strings.Index(imageData, ","); idx >= 0 && strings.HasPrefix(imageData, "data:") {
		imageData = imageData[idx+1:]
	}
	return base64.StdEncoding.DecodeString(imageData)
}
