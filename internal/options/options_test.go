package options

import (
	"errors"
	"io"
	"testing"

	"image-optimizer-go/internal/store"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (brokenStore) Set(string, string) error         { return errors.New("disk gone") }

func TestLoad_FallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name   string
		stored *string
	}{
		{"empty store", nil},
		{"invalid json", ptr("{not json")},
		{"array", ptr("[1,2]")},
		{"string", ptr(`"options"`)},
		{"null", ptr("null")},
		{"bool field as string", ptr(`{"optimize_images":"yes"}`)},
		{"number field as bool", ptr(`{"jpg_quality":true}`)},
		{"number field null", ptr(`{"webp_quality":null}`)},
		{"fractional quality", ptr(`{"png8_quality":80.5}`)},
		{"quality beyond exact range", ptr(`{"jpg_quality":1e300}`)},
		{"one bad among good", ptr(`{"jpg_quality":50,"use_png8":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			if tt.stored != nil {
				_ = s.Set(StoreKey, *tt.stored)
			}
			repo := NewRepository(s, quietLogger())
			if got := repo.Load(); got != Defaults() {
				t.Errorf("Load() = %+v, want defaults %+v", got, Defaults())
			}
		})
	}
}

func TestLoad_StoreError(t *testing.T) {
	repo := NewRepository(brokenStore{}, quietLogger())
	if got := repo.Load(); got != Defaults() {
		t.Errorf("Load() = %+v, want defaults", got)
	}
}

func TestLoad_MergesPartialRecord(t *testing.T) {
	s := store.NewMemoryStore()
	_ = s.Set(StoreKey, `{"jpg_quality":55,"use_png8":true,"unknown":"ignored"}`)
	repo := NewRepository(s, quietLogger())

	want := Defaults()
	want.JPGQuality = 55
	want.UsePNG8 = true

	if got := repo.Load(); got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	cases := []OptimizeOptions{
		Defaults(),
		{OptimizeImages: false, JPGQuality: 1, GenerateWebP: true, WebPQuality: 100, WebPFromOptimized: true, UsePNG8: true, PNG8Quality: 42},
		{OptimizeImages: false, JPGQuality: 80, GenerateWebP: false, WebPQuality: 80, PNG8Quality: 80},
		{OptimizeImages: true, JPGQuality: 1 << 31, GenerateWebP: true, WebPQuality: -(1 << 40), PNG8Quality: 1 << 53},
	}

	for _, o := range cases {
		repo := NewRepository(store.NewMemoryStore(), quietLogger())
		if err := repo.Save(o); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if got := repo.Load(); got != o {
			t.Errorf("Load() after Save(%+v) = %+v", o, got)
		}
	}
}

func TestSave_StoreError(t *testing.T) {
	repo := NewRepository(brokenStore{}, quietLogger())
	if err := repo.Save(Defaults()); err == nil {
		t.Errorf("Save() expected error from broken store")
	}
}

func TestValidate(t *testing.T) {
	o := Defaults()
	if err := o.Validate(); err != nil {
		t.Errorf("Validate() defaults error = %v", err)
	}

	for _, q := range []int{0, 101, -5} {
		o := Defaults()
		o.WebPQuality = q
		if err := o.Validate(); err == nil {
			t.Errorf("Validate() with webp_quality %d: expected error", q)
		}
	}
}

func TestSet(t *testing.T) {
	o := Defaults()
	if err := o.Set("jpg_quality", "65"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := o.Set("use_png8", "true"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if o.JPGQuality != 65 || !o.UsePNG8 {
		t.Errorf("Set() result = %+v", o)
	}

	if err := o.Set("jpg_quality", "high"); err == nil {
		t.Errorf("Set() with non-number: expected error")
	}
	if err := o.Set("use_png8", "1"); err == nil {
		t.Errorf("Set() with number for bool: expected error")
	}
	if err := o.Set("colour", "red"); err == nil {
		t.Errorf("Set() with unknown key: expected error")
	}
}

func ptr(s string) *string { return &s }
