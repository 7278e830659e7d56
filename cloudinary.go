package main

import (
	"bytes"
	"context"
	"net"
	"net/url"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
	"github.com/pkg/errors"
)

// cloudinaryHost uploads media to Cloudinary. Without an API secret it uses
// unsigned uploads through the configured preset.
type cloudinaryHost struct {
	cld      *cloudinary.Cloudinary
	preset   string
	unsigned bool
}

func newCloudinaryHost(cfg CloudinaryConfig) (*cloudinaryHost, error) {
	var (
		conf *config.Configuration
		err  error
	)
	if cfg.URL != "" {
		conf, err = config.NewFromURL(cfg.URL)
	} else {
		conf, err = config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary config")
	}
	if cfg.UploadPrefix != "" {
		conf.API.UploadPrefix = cfg.UploadPrefix
	}
	cld, err := cloudinary.NewFromConfiguration(*conf)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary init")
	}
	return &cloudinaryHost{
		cld:      cld,
		preset:   cfg.UploadPreset,
		unsigned: conf.Cloud.APISecret == "",
	}, nil
}

// resourceType maps a media category to Cloudinary's upload pathway; audio
// lives under the video resource type.
func (h *cloudinaryHost) resourceType(c mediaCategory) string {
	if c == categoryImage {
		return "image"
	}
	return "video"
}

func (h *cloudinaryHost) Put(ctx context.Context, up assetUpload) (MediaAsset, error) {
	params := uploader.UploadParams{
		PublicID:     up.PublicID,
		Folder:       up.Folder,
		ResourceType: h.resourceType(up.Category),
	}
	var (
		res *uploader.UploadResult
		err error
	)
	if h.unsigned {
		res, err = h.cld.Upload.UnsignedUpload(ctx, bytes.NewReader(up.Data), h.preset, params)
	} else {
		params.UploadPreset = h.preset
		res, err = h.cld.Upload.Upload(ctx, bytes.NewReader(up.Data), params)
	}
	if err != nil {
		if isTransportError(ctx, err) {
			return MediaAsset{}, err
		}
		return MediaAsset{}, wrapAppError(KindUpstreamRejected, err, err.Error())
	}
	if res == nil {
		return MediaAsset{}, newAppError(KindUpstreamRejected, "Upload failed")
	}
	if res.Error.Message != "" {
		return MediaAsset{}, newAppError(KindUpstreamRejected, res.Error.Message)
	}
	return MediaAsset{URL: res.SecureURL, PublicID: res.PublicID, ResourceType: res.ResourceType}, nil
}

func isTransportError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || isTimeout(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// placeholderHost stands in for the asset host in dev mode.
type placeholderHost struct{}

func (placeholderHost) Put(_ context.Context, up assetUpload) (MediaAsset, error) {
	return MediaAsset{
		URL:          "https://via.placeholder.com/800x600.png?text=" + url.QueryEscape(up.PublicID),
		PublicID:     up.Folder + "/" + up.PublicID,
		ResourceType: string(up.Category),
	}, nil
}
