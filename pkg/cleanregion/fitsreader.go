package cleanregion

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// FitsMetadata holds parsed FITS header key-value pairs.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func (m *FitsMetadata) GetString(key string) string {
	if v, ok := m.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *FitsMetadata) GetInt(key string) (int, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

func (m *FitsMetadata) ObjectName() string    { return m.GetString("OBJECT") }
func (m *FitsMetadata) TelescopeName() string { return m.GetString("TELESCOP") }

// ReadCube reads the primary HDU of a FITS image or cube file.
func ReadCube(filePath string) (*Cube, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readCubeFromReader(f)
}

// ReadCubeFromBytes reads the primary HDU of a FITS image or cube held in memory.
func ReadCubeFromBytes(data []byte) (*Cube, error) {
	return readCubeFromReader(bytes.NewReader(data))
}

func readCubeFromReader(r io.Reader) (*Cube, error) {
	metadata, err := readFitsHeader(r)
	if err != nil {
		return nil, err
	}

	bitpix, _ := metadata.GetInt("BITPIX")
	naxis, _ := metadata.GetInt("NAXIS")
	width, _ := metadata.GetInt("NAXIS1")
	height, _ := metadata.GetInt("NAXIS2")
	if naxis < 2 || naxis > 4 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", ErrInvalidFits, naxis, width, height)
	}

	numPlanes := 1
	extent := 0
	for axis := 3; axis <= naxis; axis++ {
		n, ok := metadata.GetInt(fmt.Sprintf("NAXIS%d", axis))
		if !ok || n <= 0 {
			return nil, fmt.Errorf("%w: NAXIS%d missing or empty", ErrInvalidFits, axis)
		}
		if n > 1 {
			extent++
		}
		numPlanes *= n
	}
	if extent > 1 {
		return nil, fmt.Errorf("%w: more than one non-degenerate axis beyond the image plane", ErrInvalidFits)
	}

	bscale := 1.0
	if v, ok := metadata.GetDouble("BSCALE"); ok {
		bscale = v
	}
	bzero, _ := metadata.GetDouble("BZERO")
	blank, hasBlank := metadata.GetInt("BLANK")

	header := newImageHeader(metadata, width, height, numPlanes)
	cube := &Cube{Header: header}

	numPixels := width * height
	bytesPerPixel := abs(bitpix) / 8
	rawBytes := make([]byte, numPixels*bytesPerPixel)
	for plane := 0; plane < numPlanes; plane++ {
		if _, err := io.ReadFull(r, rawBytes); err != nil {
			cube.Close()
			return nil, fmt.Errorf("reading plane %d of BITPIX %d data: %w", plane, bitpix, err)
		}
		p, err := decodePlane(rawBytes, bitpix, width, height, bscale, bzero, blank, hasBlank)
		if err != nil {
			cube.Close()
			return nil, err
		}
		cube.Planes = append(cube.Planes, p)
	}
	return cube, nil
}

func readFitsHeader(r io.Reader) (*FitsMetadata, error) {
	metadata := NewFitsMetadata()
	recordBuf := make([]byte, 80)

	for {
		for i := 0; i < 36; i++ {
			if _, err := io.ReadFull(r, recordBuf); err != nil {
				return nil, fmt.Errorf("%w: reading header record: %v", ErrInvalidFits, err)
			}
			record := string(recordBuf)
			keyword := strings.TrimSpace(record[:8])

			if keyword == "END" {
				remaining := 35 - i
				if remaining > 0 {
					if _, err := io.ReadFull(r, make([]byte, remaining*80)); err != nil {
						return nil, fmt.Errorf("%w: reading header padding: %v", ErrInvalidFits, err)
					}
				}
				if _, ok := metadata.Headers["BITPIX"]; !ok {
					return nil, fmt.Errorf("%w: missing BITPIX", ErrInvalidFits)
				}
				return metadata, nil
			}

			if record[8] == '=' && record[9] == ' ' {
				parsedValue := parseFitsValue(stripComment(record[10:]))
				if keyword != "" && parsedValue != "" {
					metadata.Headers[strings.ToUpper(keyword)] = parsedValue
				}
			}
		}
	}
}

func decodePlane(raw []byte, bitpix, width, height int, bscale, bzero float64, blank int, hasBlank bool) (Plane, error) {
	numPixels := width * height
	data := NewMatWithSize(height, width)
	dest := data.DataFloat32()
	mask := make([]bool, numPixels)

	for i := 0; i < numPixels; i++ {
		var raw64 float64
		isBlank := false
		switch bitpix {
		case 8:
			v := raw[i]
			isBlank = hasBlank && int(v) == blank
			raw64 = float64(v)
		case 16:
			v := int16(binary.BigEndian.Uint16(raw[i*2:]))
			isBlank = hasBlank && int(v) == blank
			raw64 = float64(v)
		case 32:
			v := int32(binary.BigEndian.Uint32(raw[i*4:]))
			isBlank = hasBlank && int(v) == blank
			raw64 = float64(v)
		case -32:
			raw64 = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		case -64:
			raw64 = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		default:
			data.Close()
			return Plane{}, fmt.Errorf("%w: unsupported BITPIX %d", ErrInvalidFits, bitpix)
		}

		if isBlank || math.IsNaN(raw64) {
			dest[i] = float32(math.NaN())
			continue
		}
		dest[i] = float32(raw64*bscale + bzero)
		mask[i] = true
	}
	return Plane{Data: data, Mask: mask}, nil
}

// stripComment drops the "/ comment" part of a header value, ignoring slashes
// inside quoted strings.
func stripComment(value string) string {
	inString := false
	for i, c := range value {
		switch {
		case c == '\'':
			inString = !inString
		case c == '/' && !inString:
			return strings.TrimSpace(value[:i])
		}
	}
	return strings.TrimSpace(value)
}

func parseFitsValue(rawValue string) string {
	if rawValue == "" {
		return ""
	}
	if rawValue == "T" {
		return "True"
	}
	if rawValue == "F" {
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.TrimRight(rawValue[1:endQuote], " ")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
