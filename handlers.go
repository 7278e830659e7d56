package main

import (
	"bytes"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// productID accepts both string and numeric ids; older admin clients sent numbers.
type productID string

func (id *productID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = productID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var n jsoniter.Number
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, &n); err != nil {
		return errInvalidInput("id must be a string or a number")
	}
	*id = productID(n.String())
	return nil
}

type productPayload struct {
	ID              productID `json:"id" validate:"required,max=191"`
	Name            string    `json:"name" validate:"required,max=255"`
	Description     string    `json:"description"`
	Image           string    `json:"image" validate:"required,url"`
	AudioURL        string    `json:"audioUrl" validate:"omitempty,url"`
	FullDescription string    `json:"fullDescription"`
	TopNotes        string    `json:"topNotes"`
	HeartNotes      string    `json:"heartNotes"`
	BaseNotes       string    `json:"baseNotes"`
}

// productUpdatePayload is a partial update. Server-owned fields are accepted
// so clients can send back a product they fetched, and are ignored.
type productUpdatePayload struct {
	ID              productID   `json:"id" validate:"required"`
	Name            *string     `json:"name" validate:"omitempty,max=255"`
	Description     *string     `json:"description"`
	Image           *string     `json:"image" validate:"omitempty,url"`
	AudioURL        *string     `json:"audioUrl" validate:"omitempty,url"`
	FullDescription *string     `json:"fullDescription"`
	TopNotes        *string     `json:"topNotes"`
	HeartNotes      *string     `json:"heartNotes"`
	BaseNotes       *string     `json:"baseNotes"`
	Notes           interface{} `json:"notes"`
	CreatedAt       interface{} `json:"createdAt"`
	UpdatedAt       interface{} `json:"updatedAt"`
}

func (p productUpdatePayload) patch() ProductPatch {
	return ProductPatch{
		Name:            p.Name,
		Description:     p.Description,
		Image:           p.Image,
		AudioURL:        p.AudioURL,
		FullDescription: p.FullDescription,
		TopNotes:        p.TopNotes,
		HeartNotes:      p.HeartNotes,
		BaseNotes:       p.BaseNotes,
	}
}

type uploadPayload struct {
	File     string `json:"file" validate:"required"`
	PublicID string `json:"publicId" validate:"max=512"`
	FileType string `json:"fileType"`
}

type authPayload struct {
	Password string `json:"password" validate:"required"`
}

// listProducts returns the whole catalog, or one product with ?id=.
func listProducts(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if id := strings.TrimSpace(c.QueryParam("id")); id != "" {
			p, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			return c.JSON(http.StatusOK, echo.Map{"product": p})
		}
		products, err := store.List(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"products": products})
	}
}

func createProduct(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload productPayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		p, err := store.Create(c.Request().Context(), Product{
			ID:              string(payload.ID),
			Name:            payload.Name,
			Description:     payload.Description,
			Image:           payload.Image,
			AudioURL:        payload.AudioURL,
			FullDescription: payload.FullDescription,
			TopNotes:        payload.TopNotes,
			HeartNotes:      payload.HeartNotes,
			BaseNotes:       payload.BaseNotes,
		})
		if err != nil {
			return err
		}
		zap.L().Info("product created", zap.String("id", p.ID), zap.String("name", p.Name))
		return c.JSON(http.StatusCreated, echo.Map{
			"success": true,
			"product": p,
			"message": "Product created successfully",
		})
	}
}

func updateProduct(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload productUpdatePayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		id := strings.TrimSpace(string(payload.ID))
		if id == "" {
			return errInvalidInput("Missing required field: id")
		}
		p, err := store.Update(c.Request().Context(), id, payload.patch())
		if err != nil {
			return err
		}
		zap.L().Info("product updated", zap.String("id", p.ID))
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"product": p,
			"message": "Product updated successfully",
		})
	}
}

func deleteProduct(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.QueryParam("id"))
		if id == "" {
			return errInvalidInput("Missing product id")
		}
		if err := store.Delete(c.Request().Context(), id); err != nil {
			return err
		}
		zap.L().Info("product deleted", zap.String("id", id))
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "Product deleted successfully",
		})
	}
}

// uploadMedia relays a base64 file to the asset host and returns its URL.
func uploadMedia(relay *MediaRelay) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload uploadPayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		asset, err := relay.Upload(c.Request().Context(), UploadRequest{
			Payload:      payload.File,
			AssetID:      payload.PublicID,
			DeclaredType: payload.FileType,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success":      true,
			"url":          asset.URL,
			"publicId":     asset.PublicID,
			"resourceType": asset.ResourceType,
		})
	}
}

// authenticate checks the admin password for the admin panel login.
func authenticate(password CredentialVerifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload authPayload
		if err := decodeBody(c, &payload); err != nil {
			return err
		}
		if !password.Configured() {
			zap.L().Error("admin password is not configured")
			return newAppError(KindInternal, "Server configuration error")
		}
		if !password.Verify(payload.Password) {
			return fail(c, http.StatusUnauthorized, string(KindUnauthorized), "Invalid password")
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "Authentication successful",
		})
	}
}
