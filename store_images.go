package insights

import (
	"context"
	"database/sql"
)

// SaveImage stores image metadata and returns it with the uploader expanded.
func (s *Store) SaveImage(ctx context.Context, img Image) (Image, error) {
	if img.ID == "" {
		img.ID = newID()
	}
	img.CreatedAt = s.timestamp()
	_, err := s.db.ExecContext(ctx, `INSERT INTO images
    (id, filename, url, alt, content_type, size, width, height, uploaded_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.Filename, img.URL, nullString(img.Alt), img.ContentType, img.Size, img.Width, img.Height,
		img.UploadedBy, img.CreatedAt)
	if err != nil {
		return Image{}, err
	}
	u, err := s.GetUser(ctx, img.UploadedBy)
	if err != nil {
		return Image{}, err
	}
	img.Uploader = Author{ID: u.ID, Name: u.Name, Email: u.Email}
	return img, nil
}

// ListImages returns all image metadata, newest first.
func (s *Store) ListImages(ctx context.Context) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT i.id, i.filename, i.url, i.alt, i.content_type, i.size, i.width, i.height,
    i.uploaded_by, u.name, u.email, i.created_at
FROM images i JOIN users u ON u.id = i.uploaded_by
ORDER BY i.created_at DESC, i.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []Image{}
	for rows.Next() {
		var img Image
		var alt sql.NullString
		if err := rows.Scan(&img.ID, &img.Filename, &img.URL, &alt, &img.ContentType, &img.Size, &img.Width, &img.Height,
			&img.UploadedBy, &img.Uploader.Name, &img.Uploader.Email, &img.CreatedAt); err != nil {
			return nil, err
		}
		img.Alt = stringPtr(alt)
		img.Uploader.ID = img.UploadedBy
		img.CreatedAt = img.CreatedAt.UTC()
		images = append(images, img)
	}
	return images, rows.Err()
}

// CountImages returns the number of uploaded images.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}
