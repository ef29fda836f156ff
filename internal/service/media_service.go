package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/metrics"
)

const MaxMediaFiles = 4

// imageSlots is how many image sequence numbers each activity owns; videos
// are numbered after them.
const imageSlots = 3

var allowedMedia = []struct {
	mime string
	kind string
}{
	{"image/jpeg", "image"},
	{"image/png", "image"},
	{"image/gif", "image"},
	{"image/webp", "image"},
	{"video/mp4", "video"},
	{"video/x-msvideo", "video"},
	{"video/quicktime", "video"},
}

type MediaService struct {
	Dir          string
	MaxBytes     int64
	MaxDimension int
	Logger       *slog.Logger
	Now          func() time.Time
}

// MediaTarget identifies the visit activity the files belong to. Zero year
// or quarter fall back to the current period.
type MediaTarget struct {
	BranchCode   string
	ActivityCode string
	Year         int
	Quarter      int
}

type UploadFile struct {
	Filename string
	Data     []byte
}

type StoredMedia struct {
	OriginalName string `json:"originalName"`
	FileName     string `json:"fileName"`
	Kind         string `json:"kind"`
	MIME         string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Save validates and decodes every file before writing any of them, then
// stores them under Dir using the branch/period/activity naming scheme.
func (s MediaService) Save(ctx context.Context, target MediaTarget, files []UploadFile) ([]StoredMedia, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("No files uploaded", nil)
	}
	if len(files) > MaxMediaFiles {
		return nil, apperr.Validation(fmt.Sprintf("At most %d files can be uploaded at once", MaxMediaFiles), nil)
	}

	type pending struct {
		name     string
		data     []byte
		ext      string
		mimeName string
		kind     string
	}
	var (
		queue          []pending
		msgs           []string
		images, videos int
	)
	for _, f := range files {
		if s.MaxBytes > 0 && int64(len(f.Data)) > s.MaxBytes {
			msgs = append(msgs, fmt.Sprintf("%s: file exceeds %d bytes", f.Filename, s.MaxBytes))
			continue
		}
		mt := mimetype.Detect(f.Data)
		kind := mediaKind(mt)
		if kind == "" {
			msgs = append(msgs, fmt.Sprintf("%s: only image and video files are allowed", f.Filename))
			continue
		}
		p := pending{name: f.Filename, data: f.Data, ext: mt.Extension(), mimeName: mt.String(), kind: kind}
		if kind == "image" {
			images++
			data, ext, mimeName, err := s.prepareImage(f.Data, mt)
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("%s: could not decode image", f.Filename))
				continue
			}
			p.data, p.ext, p.mimeName = data, ext, mimeName
		} else {
			videos++
		}
		queue = append(queue, p)
	}
	if images > imageSlots {
		msgs = append(msgs, fmt.Sprintf("at most %d images can be attached to one activity", imageSlots))
	}
	if videos > MaxMediaFiles-imageSlots {
		msgs = append(msgs, fmt.Sprintf("at most %d video can be attached to one activity", MaxMediaFiles-imageSlots))
	}
	if len(msgs) > 0 {
		return nil, apperr.Validation("Invalid upload", msgs)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, apperr.Internal("failed to prepare upload directory", err)
	}

	prefix := s.namePrefix(target)
	images, videos = 0, 0
	out := make([]StoredMedia, 0, len(queue))
	for _, p := range queue {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var seq int
		if p.kind == "image" {
			images++
			seq = images
		} else {
			videos++
			seq = imageSlots + videos
		}

		name := prefix + strconv.Itoa(seq) + p.ext
		if err := writeAtomic(s.Dir, name, p.data); err != nil {
			return out, apperr.Internal("failed to store upload", err)
		}
		metrics.MediaUploads.WithLabelValues(p.kind).Inc()
		out = append(out, StoredMedia{
			OriginalName: p.name,
			FileName:     name,
			Kind:         p.kind,
			MIME:         p.mimeName,
			Size:         int64(len(p.data)),
		})
	}
	s.Logger.Info("media stored", "branch", target.BranchCode, "activity", target.ActivityCode, "files", len(out))
	return out, nil
}

func (s MediaService) namePrefix(t MediaTarget) string {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	cur := domain.PeriodOf(now)
	year, quarter := t.Year, t.Quarter
	if year <= 0 {
		year = cur.Year
	}
	if quarter < 1 || quarter > 4 {
		quarter = cur.Quarter
	}
	branch := digitsOnly(t.BranchCode)
	if branch == "" {
		branch = "0"
	}
	activity := digitsOnly(t.ActivityCode)
	if activity == "" {
		activity = "0"
	}
	return branch + strconv.Itoa(quarter) + strconv.Itoa(year) + activity
}

// prepareImage downscales oversize images and re-encodes webp as jpeg.
// Other images are stored byte for byte.
func (s MediaService) prepareImage(data []byte, mt *mimetype.MIME) ([]byte, string, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", err
	}
	isWebP := mt.Is("image/webp")
	oversize := s.MaxDimension > 0 && (cfg.Width > s.MaxDimension || cfg.Height > s.MaxDimension)
	if !isWebP && !oversize {
		return data, mt.Extension(), mt.String(), nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", "", err
	}
	if oversize {
		img = imaging.Fit(img, s.MaxDimension, s.MaxDimension, imaging.Lanczos)
	}

	format, ext, mimeName := imaging.JPEG, ".jpg", "image/jpeg"
	if !isWebP {
		if format, err = imaging.FormatFromExtension(mt.Extension()); err != nil {
			return nil, "", "", err
		}
		ext, mimeName = mt.Extension(), mt.String()
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, "", "", err
	}
	return buf.Bytes(), ext, mimeName, nil
}

func mediaKind(mt *mimetype.MIME) string {
	for _, a := range allowedMedia {
		if mt.Is(a.mime) {
			return a.kind
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// writeAtomic stages the file under a random name and renames it into
// place, replacing any earlier upload for the same slot.
func writeAtomic(dir, name string, data []byte) error {
	tmp := filepath.Join(dir, "."+uuid.NewString()+".part")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
