package libs

import (
	"errors"
	"fmt"
	"strings"

	"production-dashboard/media"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/asset"
)

var ErrCloudinaryNotConfigured = errors.New("cloudinary environment variables not set")

// CloudinaryResolver turns stored Cloudinary public ids into delivery URLs.
// References that already are URLs are returned unchanged.
type CloudinaryResolver struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryResolver(cldURL, cloudName, apiKey, apiSecret string) (*CloudinaryResolver, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	switch {
	case cldURL != "":
		cld, err = cloudinary.NewFromURL(cldURL)
		if err != nil {
			return nil, fmt.Errorf("cloudinary init from URL fail: %w", err)
		}
	case cloudName != "":
		cld, err = cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
		if err != nil {
			return nil, fmt.Errorf("cloudinary init from params fail: %w", err)
		}
	default:
		return nil, ErrCloudinaryNotConfigured
	}

	cld.Config.URL.Secure = true
	// keep delivery URLs free of the _a tracking query
	cld.Config.URL.Analytics = false
	return &CloudinaryResolver{cld: cld}, nil
}

func (r *CloudinaryResolver) Resolve(kind media.Kind, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if media.IsURL(ref) {
		return ref, nil
	}

	var (
		a   *asset.Asset
		err error
	)
	if kind == media.KindPrintFile {
		a, err = r.cld.File(ref)
	} else {
		a, err = r.cld.Image(ref)
	}
	if err != nil {
		return "", fmt.Errorf("cloudinary asset %q: %w", ref, err)
	}
	return a.String()
}
