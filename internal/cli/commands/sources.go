package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ccollicutt/logstream/internal/cli/plugins"
	"github.com/ccollicutt/logstream/pkg/config"
	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/session"
	"github.com/ccollicutt/logstream/pkg/source"
	"github.com/ccollicutt/logstream/pkg/store"
)

// stdin is where stdin sources read from.
var stdin io.Reader = os.Stdin

// buildSourceSpecs turns configured sources into observer specs.
func buildSourceSpecs(sources []config.SourceConfig) ([]session.SourceSpec, error) {
	specs := make([]session.SourceSpec, 0, len(sources))
	for i := range sources {
		spec, err := buildSourceSpec(&sources[i])
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sources[i].Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func buildSourceSpec(src *config.SourceConfig) (session.SourceSpec, error) {
	spec := session.SourceSpec{
		Desc: store.SourceDesc{
			Name: src.Name,
			Kind: src.Type,
		},
		Parser: buildParser(&src.Parser),
	}
	readerOpts := []source.ReaderOption{source.WithChunkSize(src.ChunkSize)}

	switch src.SourceTypeEnum() {
	case config.SourceTypeFile:
		path := src.Path
		spec.Desc.Location = path
		spec.Open = func(context.Context) (source.ByteSource, error) {
			s, err := source.OpenFile(path, readerOpts...)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		if src.Tail {
			spec.TailPath = path
		}

	case config.SourceTypeStdin:
		spec.Desc.Location = "-"
		spec.Open = func(context.Context) (source.ByteSource, error) {
			return source.NewReaderSource(stdin, readerOpts...), nil
		}

	case config.SourceTypeTCP:
		addr := src.Address
		spec.Desc.Location = addr
		spec.Open = func(ctx context.Context) (source.ByteSource, error) {
			s, err := source.DialTCP(ctx, addr, readerOpts...)
			if err != nil {
				return nil, err
			}
			return s, nil
		}

	case config.SourceTypeUDP:
		addr := src.Address
		spec.Desc.Location = addr
		spec.Filter = datagramFilter(src)
		spec.Open = func(context.Context) (source.ByteSource, error) {
			s, err := source.ListenUDP(addr)
			if err != nil {
				return nil, err
			}
			return s, nil
		}

	case config.SourceTypeProcess:
		argv, err := processArgv(src)
		if err != nil {
			return session.SourceSpec{}, err
		}
		spec.Desc.Location = argv[0]
		spec.Open = func(context.Context) (source.ByteSource, error) {
			s, err := source.StartProcess(argv, readerOpts...)
			if err != nil {
				return nil, err
			}
			return s, nil
		}

	default:
		return session.SourceSpec{}, fmt.Errorf("unsupported source type %q", src.Type)
	}

	return spec, nil
}

// datagramFilter builds the udp filter from allow_remotes and
// drop_datagrams. It returns nil when neither is set.
func datagramFilter(src *config.SourceConfig) *source.Filter {
	remotes := src.AllowedRemotes()
	drop := src.CompiledDropDatagrams()
	if len(remotes) == 0 && drop == nil {
		return nil
	}
	f := &source.Filter{AllowRemotes: remotes}
	if drop != nil {
		f.Keep = func(datagram []byte) bool { return !drop.Match(datagram) }
	}
	return f
}

// processArgv resolves the command line of a process source. Plugins are
// looked up when the configuration is built so a missing plugin fails
// before any source starts.
func processArgv(src *config.SourceConfig) ([]string, error) {
	if src.Plugin == "" {
		return append([]string(nil), src.Command...), nil
	}
	path, err := plugins.FindSourcePlugin(src.Plugin)
	if err != nil {
		return nil, err
	}
	return append([]string{path}, src.Args...), nil
}

func buildParser(pc *config.ParserConfig) parser.Parser {
	if pc.ParserTypeEnum() == config.ParserTypeFrame {
		return parser.NewFrameParser()
	}

	opts := parser.TextOptions{
		Include:       pc.CompiledInclude(),
		Exclude:       pc.CompiledExclude(),
		MaxLineLength: pc.MaxLineLength,
	}
	if re := pc.CompiledTimestampPattern(); re != nil {
		opts.Timestamps = parser.NewTimestampExtractor(re, pc.TimestampLayout, pc.Location())
	}
	return parser.NewTextParser(opts)
}
