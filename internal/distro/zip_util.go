package distro

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// extractZipReader writes every member of zr into dest, shared by the
// local-file and remote-archive finder variants.
func extractZipReader(zr *zip.Reader, dest string) error {
	for _, zf := range zr.File {
		target := filepath.Join(dest, zf.Name)
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func dirHasDescriptor(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, DescriptorFilename))
	return err == nil
}
