package testutil

import "bytes"

// EncodedSample is a byte sequence in a legacy charset with its UTF-8 form.
type EncodedSample struct {
	Name    string
	Charset string
	Raw     []byte
	UTF8    string
}

var encodedSamples = []EncodedSample{
	{"win1252 smart quote", "windows-1252", []byte("Rand\x92s Opponent"), "Rand’s Opponent"},
	{"win1252 en dash", "windows-1252", []byte("2020 \x96 2024"), "2020 – 2024"},
	{"win1252 double quotes", "windows-1252", []byte("\x93Hello\x94"), "“Hello”"},
	{"win1252 euro", "windows-1252", []byte("Price: \x80100"), "Price: €100"},
	{"latin1 o acute", "iso-8859-1", []byte("Mir\xf3 - Picasso"), "Miró - Picasso"},
	{"latin1 u umlaut", "iso-8859-1", []byte("M\xfcnchen"), "München"},
	{"latin1 degree", "iso-8859-1", []byte("25\xb0C"), "25°C"},
	{
		"shift_jis sentence", "shift_jis",
		[]byte{
			0x93, 0xfa, 0x96, 0x7b, 0x8c, 0xea, 0x82, 0xcc, 0x83, 0x65, 0x83, 0x4c,
			0x83, 0x58, 0x83, 0x67, 0x83, 0x54, 0x83, 0x93, 0x83, 0x76, 0x83, 0x8b,
			0x82, 0xc5, 0x82, 0xb7, 0x81, 0x42, 0x82, 0xb1, 0x82, 0xea, 0x82, 0xcd,
			0x95, 0xb6, 0x8e, 0x9a, 0x89, 0xbb, 0x82, 0xaf, 0x82, 0xcc, 0x83, 0x65,
			0x83, 0x58, 0x83, 0x67, 0x82, 0xc9, 0x8e, 0x67, 0x97, 0x70, 0x82, 0xb3,
			0x82, 0xea, 0x82, 0xdc, 0x82, 0xb7, 0x81, 0x42,
		},
		"日本語のテキストサンプルです。これは文字化けのテストに使用されます。",
	},
	{
		"euc-kr sentence", "euc-kr",
		[]byte{
			0xc7, 0xd1, 0xb1, 0xdb, 0x20, 0xc5, 0xd8, 0xbd, 0xba, 0xc6, 0xae, 0x20,
			0xbb, 0xf9, 0xc7, 0xc3, 0xc0, 0xd4, 0xb4, 0xcf, 0xb4, 0xd9, 0x2e, 0x20,
			0xc0, 0xce, 0xc4, 0xda, 0xb5, 0xf9, 0x20, 0xb0, 0xa8, 0xc1, 0xf6, 0x20,
			0xc5, 0xd7, 0xbd, 0xba, 0xc6, 0xae, 0xbf, 0xeb, 0xc0, 0xd4, 0xb4, 0xcf,
			0xb4, 0xd9, 0x2e,
		},
		"한글 텍스트 샘플입니다. 인코딩 감지 테스트용입니다.",
	},
}

// EncodedSamples returns copies of the legacy-charset samples, safe for
// mutation by individual tests.
func EncodedSamples() []EncodedSample {
	out := make([]EncodedSample, len(encodedSamples))
	for i, s := range encodedSamples {
		s.Raw = bytes.Clone(s.Raw)
		out[i] = s
	}
	return out
}
