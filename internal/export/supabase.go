package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig locates the storage bucket receiving call records.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase uploads records to a Supabase storage bucket.
type Supabase struct {
	client *supabase.Client
	bucket string
}

// NewSupabase builds the uploader. The client is created eagerly so a bad
// URL fails at startup rather than at the end of the first call.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("supabase: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("supabase: bucket required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase: create client: %w", err)
	}
	return &Supabase{client: client, bucket: cfg.Bucket}, nil
}

func (s *Supabase) Export(_ context.Context, r Record) error {
	b, err := r.Encode()
	if err != nil {
		return err
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, r.FileName(), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("supabase: upload %s: %w", r.FileName(), err)
	}
	return nil
}
