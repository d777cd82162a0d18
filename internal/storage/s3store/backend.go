package s3store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
)

// Store maps the engine's (bucket, world id) namespace onto object keys
// inside one physical S3 bucket:
//
//	<prefix>/<bucket>/<worldID>/meta.json
//	<prefix>/<bucket>/<worldID>/r.<rx>.<rz>.region
type Store struct {
	client *Client
	prefix string
}

var _ storage.Backend = (*Store)(nil)

func NewStore(client *Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
	}
}

func (s *Store) worldPrefix(bucket, worldID string) string {
	parts := make([]string, 0, 3)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	parts = append(parts, bucket, worldID)
	return strings.Join(parts, "/")
}

func (s *Store) metaKey(bucket, worldID string) string {
	return s.worldPrefix(bucket, worldID) + "/meta.json"
}

func (s *Store) regionKey(bucket, worldID string, coord region.Coord) string {
	return fmt.Sprintf("%s/r.%d.%d.region", s.worldPrefix(bucket, worldID), coord.RX, coord.RZ)
}

// parseRegionKey recovers a region coordinate from an object key, or
// reports false for keys that are not region blobs (meta.json etc).
func parseRegionKey(key string) (region.Coord, bool) {
	base := key
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if !strings.HasPrefix(base, "r.") || !strings.HasSuffix(base, ".region") {
		return region.Coord{}, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(base, "r."), ".region")
	parts := strings.Split(mid, ".")
	if len(parts) != 2 {
		return region.Coord{}, false
	}
	rx, err1 := strconv.Atoi(parts[0])
	rz, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return region.Coord{}, false
	}
	return region.Coord{RX: rx, RZ: rz}, true
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: s3 %s: %v", storage.ErrUnavailable, op, err)
}

func (s *Store) Exists(ctx context.Context, bucket, worldID string) (bool, error) {
	ok, err := s.client.headObject(ctx, s.metaKey(bucket, worldID))
	if err != nil {
		return false, unavailable("head meta", err)
	}
	return ok, nil
}

func (s *Store) GetMeta(ctx context.Context, bucket, worldID string) ([]byte, error) {
	b, found, err := s.client.getObject(ctx, s.metaKey(bucket, worldID))
	if err != nil {
		return nil, unavailable("get meta", err)
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) PutMeta(ctx context.Context, bucket, worldID string, data []byte) error {
	if err := s.client.putObject(ctx, s.metaKey(bucket, worldID), data); err != nil {
		return unavailable("put meta", err)
	}
	return nil
}

func (s *Store) GetRegion(ctx context.Context, bucket, worldID string, coord region.Coord) ([]byte, error) {
	b, found, err := s.client.getObject(ctx, s.regionKey(bucket, worldID, coord))
	if err != nil {
		return nil, unavailable("get region", err)
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) PutRegion(ctx context.Context, bucket, worldID string, coord region.Coord, data []byte) error {
	if err := s.client.putObject(ctx, s.regionKey(bucket, worldID, coord), data); err != nil {
		return unavailable("put region", err)
	}
	return nil
}

func (s *Store) ListRegions(ctx context.Context, bucket, worldID string) ([]region.Coord, error) {
	keys, err := s.client.listKeys(ctx, s.worldPrefix(bucket, worldID)+"/")
	if err != nil {
		return nil, unavailable("list", err)
	}
	var out []region.Coord
	for _, k := range keys {
		if c, ok := parseRegionKey(k); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, bucket, worldID string) error {
	keys, err := s.client.listKeys(ctx, s.worldPrefix(bucket, worldID)+"/")
	if err != nil {
		return unavailable("list", err)
	}
	for _, k := range keys {
		if err := s.client.deleteObject(ctx, k); err != nil {
			return unavailable("delete", err)
		}
	}
	return nil
}
