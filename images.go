package insights

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

const (
	maxUploadSize = 5 << 20 // 5MB
	uploadsSubdir = "uploads"
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Upload is an image file received from an admin.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Alt         string
	Body        io.Reader
}

// UploadError reports a rejected upload. It is a client error.
type UploadError struct {
	Msg string
}

func (e *UploadError) Error() string {
	return e.Msg
}

var (
	errInvalidFileType = &UploadError{Msg: "invalid file type"}
	errFileTooLarge    = &UploadError{Msg: "file too large"}
)

// BlobStore persists uploaded bytes and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// DiskBlobStore writes blobs under Dir and serves them from BaseURL.
type DiskBlobStore struct {
	Dir     string
	BaseURL string
}

// NewDiskBlobStore stores uploads in <staticDir>/uploads, served at /uploads/.
func NewDiskBlobStore(staticDir string) *DiskBlobStore {
	return &DiskBlobStore{Dir: filepath.Join(staticDir, uploadsSubdir), BaseURL: "/" + uploadsSubdir}
}

func (d *DiskBlobStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path.Join(d.BaseURL, name), nil
}

// readUpload checks the declared type and size, then reads at most one byte
// past the limit so an understated Size is still caught.
func readUpload(u Upload) ([]byte, error) {
	ct := normalizeContentType(u.ContentType)
	if _, ok := allowedImageTypes[ct]; !ok {
		return nil, errInvalidFileType
	}
	if u.Size > maxUploadSize {
		return nil, errFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(u.Body, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadSize {
		return nil, errFileTooLarge
	}
	return data, nil
}

func normalizeContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// uploadName returns a random 128-bit hex name keeping the original
// extension, or one derived from the content type.
func uploadName(original, contentType string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || ext == "." || strings.ContainsAny(ext, `/\`) {
		ext = allowedImageTypes[contentType]
	}
	return hex.EncodeToString(b) + ext, nil
}

// UploadImage validates and stores an image, then records its metadata.
func (s *Service) UploadImage(ctx context.Context, c Claims, u Upload) (Image, error) {
	if err := RequireAdmin(c); err != nil {
		return Image{}, err
	}
	data, err := readUpload(u)
	if err != nil {
		return Image{}, err
	}
	ct := normalizeContentType(u.ContentType)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, errInvalidFileType
	}
	name, err := uploadName(u.Filename, ct)
	if err != nil {
		return Image{}, fmt.Errorf("generate filename: %w", err)
	}
	url, err := s.blobs.Put(ctx, name, ct, data)
	if err != nil {
		return Image{}, err
	}
	img := Image{
		Filename:    name,
		URL:         url,
		ContentType: ct,
		Size:        int64(len(data)),
		Width:       cfg.Width,
		Height:      cfg.Height,
		UploadedBy:  c.UserID,
	}
	if alt := strings.TrimSpace(u.Alt); alt != "" {
		img.Alt = &alt
	}
	img, err = s.store.SaveImage(ctx, img)
	if err != nil {
		return Image{}, err
	}
	s.log.Info("image uploaded", zap.String("filename", img.Filename), zap.Int64("size", img.Size))
	return img, nil
}

func (a *App) handleAdminImages(c echo.Context) error {
	return a.renderAdminImages(c, http.StatusOK, c.QueryParam("msg"), "")
}

func (a *App) renderAdminImages(c echo.Context, code int, msg, errMsg string) error {
	claims := ClaimsFrom(c)
	images, err := a.Service.ListImages(c.Request().Context(), claims)
	if err != nil {
		return err
	}
	return RenderStatus(c, code, a.Views.AdminImages(AdminImagesPage{
		Site:      a.Config,
		User:      claims,
		Images:    images,
		Message:   msg,
		Error:     errMsg,
		CSRFToken: CsrfToken(c),
	}))
}

func (a *App) handleAdminUploadImage(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return a.renderAdminImages(c, http.StatusBadRequest, "", "Choose a file to upload.")
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = a.Service.UploadImage(c.Request().Context(), ClaimsFrom(c), Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Alt:         strings.TrimSpace(c.FormValue("alt")),
		Body:        src,
	})
	var uerr *UploadError
	if errors.As(err, &uerr) {
		return a.renderAdminImages(c, http.StatusBadRequest, "", uerr.Msg)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/images/", "Image uploaded.")
}
