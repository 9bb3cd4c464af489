package upstream

import (
	"context"
	"net/url"
)

// ProfileImageURL returns the upstream URL for a student's profile image.
// The display UI loads it directly; the kiosk never caches profile photos.
func (c *Client) ProfileImageURL(studentID string) string {
	return c.baseURL + "/upload/getImage/" + url.PathEscape(studentID)
}

// UploadProfileImage replaces a student's profile photo.
func (c *Client) UploadProfileImage(ctx context.Context, studentID string, image []byte) error {
	body, contentType, err := encodeMultipart(image, "profile.jpg", nil, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, "POST", "/upload/uploadimage/"+url.PathEscape(studentID), body, contentType, nil)
}
