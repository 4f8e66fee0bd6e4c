package msnp

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const ubxPayload = "<Data><PSM>my msn all ducked</PSM><CurrentMedia></CurrentMedia></Data>"

// A realistic post-login burst: SYN roster, a presence change echo with the
// ILN that follows, a personal message payload and a ping reply.
func streamTestData() []byte {
	return []byte("" +
		"SYN 5 0 0 2 1\r\n" +
		"GTC A\r\n" +
		"BLP AL\r\n" +
		"PRP MFN Testing\r\n" +
		"LSG Mock%20Contacts 124153dc-a695-4f6c-93e8-8e07c9775251\r\n" +
		"LST N=bob@passport.com F=Bob C=6bd736b8-dc18-44c6-ad61-8cd12d641e79 13 124153dc-a695-4f6c-93e8-8e07c9775251\r\n" +
		"LST N=fred@passport.com F=Fred 2\r\n" +
		"CHG 7 NLN 1073741824\r\n" +
		"ILN 7 NLN bob@passport.com Bob 1073741824 %3Cmsnobj%20Creator%3D%22\r\n" +
		"UBX bob@passport.com 70\r\n" +
		ubxPayload +
		"QNG 60\r\n")
}

func parseStreamFull(p *ParserStream, data []byte) ([]*Command, error) {
	var cmds []*Command
	err := p.ParseStream(data, func(cmd *Command) {
		cmds = append(cmds, cmd)
	})
	return cmds, err
}

func TestParserStreamCommands(t *testing.T) {
	parser := &ParserStream{}
	defer parser.Close()

	cmds, err := parseStreamFull(parser, streamTestData())
	require.NoError(t, err)
	require.Len(t, cmds, 11)

	require.Equal(t, "SYN", cmds[0].Verb)
	require.Equal(t, []string{"5", "0", "0", "2", "1"}, cmds[0].Args)
	require.Equal(t, "GTC", cmds[1].Verb)
	require.Equal(t, "A", cmds[1].Arg(0))

	ubx := cmds[9]
	require.Equal(t, "UBX", ubx.Verb)
	require.Equal(t, "bob@passport.com", ubx.Arg(0))
	require.Equal(t, ubxPayload, string(ubx.Payload))

	require.Equal(t, "QNG", cmds[10].Verb)
	require.Equal(t, "60", cmds[10].Arg(0))
}

func TestParserStreamSplits(t *testing.T) {
	parser := &ParserStream{}
	defer parser.Close()

	data := streamTestData()

	for _, c := range []struct {
		Name  string
		Split []int
	}{
		// hand picked mid-command split points
		{Name: "inside first line", Split: []int{5}},
		{Name: "inside roster lines", Split: []int{100, 200}},
		{Name: "inside UBX payload", Split: []int{378}},
		{Name: "line and payload", Split: []int{50, 430}},
		{Name: "byte by byte start", Split: []int{1, 2, 3, 4, 5, 6}},
	} {
		t.Run(c.Name, func(t *testing.T) {
			var cmds []*Command
			start := 0
			for _, end := range c.Split {
				part, err := parseStreamFull(parser, data[start:end])
				cmds = append(cmds, part...)
				require.ErrorIs(t, err, ErrParseMsnpPartial)
				start = end
			}

			part, err := parseStreamFull(parser, data[start:])
			require.NoError(t, err)
			cmds = append(cmds, part...)

			require.Len(t, cmds, 11)
			require.Equal(t, ubxPayload, string(cmds[9].Payload))
			require.Equal(t, "QNG", cmds[10].Verb)
		})
	}

	// Random split points may land exactly on a command boundary, in which
	// case the part parses clean. Only the aggregate is asserted.
	for i := 0; i < 3; i++ {
		split := 1 + rand.Intn(len(data)-1)
		t.Run(fmt.Sprintf("random split %d", split), func(t *testing.T) {
			first, err := parseStreamFull(parser, data[:split])
			if err != nil {
				require.ErrorIs(t, err, ErrParseMsnpPartial)
			}
			rest, err := parseStreamFull(parser, data[split:])
			require.NoError(t, err)

			cmds := append(first, rest...)
			require.Len(t, cmds, 11)
			require.Equal(t, ubxPayload, string(cmds[9].Payload))
		})
	}

	t.Run("reset", func(t *testing.T) {
		require.True(t, parser.state == stateCommandLine)
		parser.Close()
		require.Nil(t, parser.buf)
	})
}

func TestParserStreamLeadingBlankLines(t *testing.T) {
	parser := &ParserStream{}
	defer parser.Close()

	cmds, err := parseStreamFull(parser, []byte("\r\n\r\nQNG 60\r\n"))
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.Equal(t, "QNG", cmds[0].Verb)
}

func TestParserStreamMalformedLength(t *testing.T) {
	parser := &ParserStream{}
	defer parser.Close()

	t.Run("length does not parse", func(t *testing.T) {
		cmds, err := parseStreamFull(parser, []byte("MSG bob@passport.com Bob xyz\r\nGTC A\r\n"))
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		require.Equal(t, "GTC", cmds[0].Verb)
	})

	t.Run("length missing", func(t *testing.T) {
		cmds, err := parseStreamFull(parser, []byte("UBX bob@passport.com\r\nFLN bob@passport.com\r\n"))
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		require.Equal(t, "FLN", cmds[0].Verb)
	})

	t.Run("length absurd", func(t *testing.T) {
		cmds, err := parseStreamFull(parser, []byte("UBX bob@passport.com 999999999\r\nQNG 60\r\n"))
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		require.Equal(t, "QNG", cmds[0].Verb)
	})
}

func TestParserStreamServerDirection(t *testing.T) {
	parser := &ParserStream{PayloadVerbs: ServerPayloadVerbs}
	defer parser.Close()

	payload := "<Data><PSM>test</PSM><CurrentMedia></CurrentMedia></Data>"
	data := []byte("" +
		"GCF 6 Shields.xml\r\n" + // a request, no payload in this direction
		fmt.Sprintf("UUX 8 %d\r\n", len(payload)) +
		payload +
		"PNG\r\n")

	cmds, err := parseStreamFull(parser, data)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	require.Equal(t, "GCF", cmds[0].Verb)
	require.Nil(t, cmds[0].Payload)
	require.Equal(t, payload, string(cmds[1].Payload))
	require.Equal(t, "PNG", cmds[2].Verb)
}

func BenchmarkParserStream(b *testing.B) {
	data := streamTestData()
	minsize := len(data) / 3
	chunks := [][]byte{
		data[:minsize], data[minsize : minsize*2], data[minsize*2:],
	}

	b.Run("NoChunks", func(b *testing.B) {
		parser := &ParserStream{}
		for i := 0; i < b.N; i++ {
			cmds, err := parseStreamFull(parser, data)
			if err != nil {
				b.Fatal("parsing failed", err)
			}
			if len(cmds) != 11 {
				b.Fatal("wrong command count")
			}
		}
	})

	b.Run("Chunked", func(b *testing.B) {
		parser := &ParserStream{}
		for i := 0; i < b.N; i++ {
			var cmds []*Command
			for _, chunk := range chunks {
				part, err := parseStreamFull(parser, chunk)
				if err != nil && err != ErrParseMsnpPartial {
					b.Fatal("parsing failed", err)
				}
				cmds = append(cmds, part...)
			}
			if len(cmds) != 11 {
				b.Fatal("wrong command count")
			}
		}
	})

	b.Run("Paralel", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			parser := &ParserStream{}
			for pb.Next() {
				cmds, err := parseStreamFull(parser, data)
				if err != nil {
					b.Fatal("parsing failed", err)
				}
				if len(cmds) != 11 {
					b.Fatal("wrong command count")
				}
			}
		})
	})
}
