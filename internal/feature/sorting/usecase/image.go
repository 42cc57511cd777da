package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
)

// MaxImageSize は画像アップロードのデフォルト上限（10MB）です。
const MaxImageSize = 10 * 1024 * 1024

// validateImage はアップロードされたバイト列が画像として読めるかを検証します。
// デコードはヘッダーのみで、画素の展開は推論アダプター側で行います。
func validateImage(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w of %d bytes", ErrImageTooLarge, maxSize)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty image bounds %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	return nil
}
