package hab

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// FreezeSupportedVersion is the highest freeze encoding version this
// implementation understands.
const FreezeSupportedVersion = 1

// Frozen is the opaque, reversible snapshot of a FlatConfig: everything
// needed to reconstruct the active environment and aliases without
// re-resolving the URI, omitting source-only bookkeeping (config forest,
// solver state).
type Frozen struct {
	URI         string                            `json:"uri"`
	Versions    map[string]string                 `json:"versions"`
	Environment map[string]map[string][]string    `json:"environment"`
	Aliases     map[string]map[string]FrozenAlias `json:"aliases"`
}

// FrozenAlias is the serializable form of Alias.
type FrozenAlias struct {
	Cmd         interface{}         `json:"cmd"`
	Environment map[string][]string `json:"environment,omitempty"`
}

// Freeze produces the Frozen snapshot of fc, ready for EncodeFreeze.
func (fc *FlatConfig) Freeze() *Frozen {
	f := &Frozen{
		URI:         fc.URI,
		Versions:    map[string]string{},
		Environment: map[string]map[string][]string{},
		Aliases:     map[string]map[string]FrozenAlias{},
	}
	for name, dv := range fc.Versions {
		f.Versions[name] = dv.VersionString()
	}
	for plat, result := range fc.Environment {
		envOut := map[string][]string{}
		for name, v := range result {
			if v.Unset {
				continue
			}
			envOut[name] = v.Parts
		}
		f.Environment[plat] = envOut
	}
	for plat, aliases := range fc.Aliases {
		out := map[string]FrozenAlias{}
		for name, a := range aliases {
			fa := FrozenAlias{Cmd: a.Cmd}
			if a.Environment != nil {
				envOut := map[string][]string{}
				for k, v := range a.Environment {
					if v.Unset {
						continue
					}
					envOut[k] = v.Parts
				}
				fa.Environment = envOut
			}
			out[name] = fa
		}
		f.Aliases[plat] = out
	}
	return f
}

// EncodeFreeze produces a version-1 freeze string: JSON-marshal, deflate,
// base64url-encode, prefix with "v1:". Other version numbers are not
// produced by this implementation (only decoded, as a no-op passthrough
// where defined).
func EncodeFreeze(f *Frozen) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	encoded := base64.URLEncoding.EncodeToString(buf.Bytes())
	return "v1:" + encoded, nil
}

// DecodeFreeze reverses EncodeFreeze: parse `v<digits>:`, dispatch by
// version. A missing prefix, non-integer version, or malformed payload
// raises FreezeDecodeError; an unsupported-but-well-formed version returns
// (nil, nil).
func DecodeFreeze(s string) (*Frozen, error) {
	idx := strings.IndexByte(s, ':')
	if idx == -1 || len(s) < 2 || s[0] != 'v' {
		return nil, newFreezeDecodeError("Missing freeze version information in frozen string")
	}
	versionStr := s[1:idx]
	payload := s[idx+1:]

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return nil, newFreezeDecodeError("Version " + versionStr + " is not valid")
	}

	if version != FreezeSupportedVersion {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, newFreezeDecodeError("frozen string payload is not valid base64url: " + err.Error())
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, newFreezeDecodeError("frozen string payload is not valid deflate data: " + err.Error())
	}

	var f Frozen
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, newFreezeDecodeError("frozen string payload is not valid JSON: " + err.Error())
	}
	return &f, nil
}
