package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/efs"
	"github.com/mit-pdos/go-easyfs/fsck"
	"github.com/mit-pdos/go-easyfs/vfs"
)

func commands(config *Config) []*cli.Command {
	return []*cli.Command{{
		Name:  "mkfs",
		Usage: "format the image",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:        "blocks",
				Usage:       "filesystem size in blocks",
				Value:       config.TotalBlocks,
				Destination: &config.TotalBlocks,
			},
			&cli.Uint64Flag{
				Name:        "inodes",
				Usage:       "minimum number of inodes (default one per 4 blocks)",
				Value:       config.Inodes,
				Destination: &config.Inodes,
			},
		},
		Action: func(ctx *cli.Context) error {
			d, err := disk.NewFileDisk(config.Image, config.TotalBlocks)
			if err != nil {
				return fmt.Errorf("creating image %s: %w", config.Image, err)
			}
			fs, err := efs.Create(d, config.Params())
			if err != nil {
				d.Close()
				return err
			}
			info, err := superInfo(fs)
			if err == nil {
				err = printYAML(ctx.App.Writer, info)
			}
			if err != nil {
				fs.Close()
				return err
			}
			return fs.Close()
		},
	}, {
		Name:      "ls",
		Usage:     "list the root directory",
		ArgsUsage: "[DIR]",
		Action: withFs(config, 0, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			d := vfs.Root(fs)
			if ctx.NArg() > 0 {
				var err error
				if d, err = d.Find(ctx.Args().First()); err != nil {
					return err
				}
			}
			return ls(ctx.App.Writer, d)
		}),
	}, {
		Name:      "put",
		Usage:     "write standard input to a file, creating it if needed",
		ArgsUsage: "NAME",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			return put(vfs.Root(fs), ctx.Args().First(), os.Stdin)
		}),
	}, {
		Name:      "cat",
		Usage:     "write a file to standard output",
		ArgsUsage: "NAME",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			return cat(ctx.App.Writer, vfs.Root(fs), ctx.Args().First())
		}),
	}, {
		Name:      "ln",
		Usage:     "add a second name for a file",
		ArgsUsage: "OLD NEW",
		Action: withFs(config, 2, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			return vfs.Root(fs).Link(ctx.Args().Get(0), ctx.Args().Get(1))
		}),
	}, {
		Name:      "rm",
		Usage:     "remove a name; the file goes with its last name",
		ArgsUsage: "NAME",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			return rm(vfs.Root(fs), ctx.Args().First())
		}),
	}, {
		Name:      "mkdir",
		Usage:     "make a directory",
		ArgsUsage: "NAME",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			_, err := vfs.Root(fs).Mkdir(ctx.Args().First())
			return err
		}),
	}, {
		Name:      "stat",
		Usage:     "describe the file a name refers to",
		ArgsUsage: "NAME",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			ino, err := vfs.Root(fs).Find(ctx.Args().First())
			if err != nil {
				return err
			}
			st, err := ino.Stat()
			if err != nil {
				return err
			}
			return printYAML(ctx.App.Writer, st)
		}),
	}, {
		Name:      "fstat",
		Usage:     "describe an inode by number",
		ArgsUsage: "INUM",
		Action: withFs(config, 1, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			inum, err := strconv.ParseUint(ctx.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: inode number %q", common.ErrInvalidArgument, ctx.Args().First())
			}
			st, err := vfs.Stat(fs, common.Inum(inum))
			if err != nil {
				return err
			}
			return printYAML(ctx.App.Writer, st)
		}),
	}, {
		Name:  "fsck",
		Usage: "check the filesystem invariants",
		Action: withFs(config, 0, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			r, err := fsck.Check(fs)
			if err != nil {
				return err
			}
			if err := printYAML(ctx.App.Writer, r); err != nil {
				return err
			}
			if !r.OK() {
				return fmt.Errorf("%w: %d problems", common.ErrInconsistent, len(r.Problems))
			}
			return nil
		}),
	}, {
		Name:  "super",
		Usage: "print the superblock",
		Action: withFs(config, 0, func(fs *efs.EasyFileSystem, ctx *cli.Context) error {
			info, err := superInfo(fs)
			if err != nil {
				return err
			}
			return printYAML(ctx.App.Writer, info)
		}),
	}}
}

// withFs mounts the image for the duration of f and checks the argument
// count first.
func withFs(config *Config, nargs int, f func(*efs.EasyFileSystem, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() < nargs {
			return fmt.Errorf("%w: %s needs %d arguments, got %d",
				common.ErrInvalidArgument, ctx.Command.Name, nargs, ctx.NArg())
		}
		d, err := disk.OpenFileDisk(config.Image)
		if err != nil {
			return fmt.Errorf("opening image %s: %w", config.Image, err)
		}
		fs, err := efs.Open(d, config.CacheBlocks)
		if err != nil {
			d.Close()
			return err
		}
		if err := f(fs, ctx); err != nil {
			fs.Close()
			return err
		}
		return fs.Close()
	}
}

func printYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing YAML: %w", err)
	}
	return nil
}

func ls(w io.Writer, d *vfs.Inode) error {
	ents, err := d.Entries()
	if err != nil {
		return err
	}
	for _, de := range ents {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", de.Inum, de.Name); err != nil {
			return err
		}
	}
	return nil
}

// put replaces the content of name with everything read from r.
func put(root *vfs.Inode, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	ino, err := root.Find(name)
	if err != nil {
		if ino, err = root.Create(name); err != nil {
			return err
		}
	} else if err := ino.Clear(); err != nil {
		return err
	}
	_, err = ino.WriteAt(0, data)
	return err
}

func cat(w io.Writer, root *vfs.Inode, name string) error {
	ino, err := root.Find(name)
	if err != nil {
		return err
	}
	size, err := ino.Size()
	if err != nil {
		return err
	}
	p := make([]byte, size)
	n, err := ino.ReadAt(0, p)
	if err != nil {
		return err
	}
	_, err = w.Write(p[:n])
	return err
}

// errNotEmpty is returned by rm for a directory that still has entries.
var errNotEmpty = cli.Exit("directory not empty", int(unix.ENOTEMPTY))

// rm unlinks name, refusing to drop the last name of a non-empty directory.
func rm(root *vfs.Inode, name string) error {
	ino, err := root.Find(name)
	if err != nil {
		return err
	}
	st, err := ino.Stat()
	if err != nil {
		return err
	}
	if st.Mode == common.KindDir && st.Nlink == 1 {
		empty, err := ino.IsEmpty()
		if err != nil {
			return err
		}
		if !empty {
			return errNotEmpty
		}
	}
	return root.Unlink(name)
}

type superRecord struct {
	UUID        string `yaml:"uuid"`
	TotalBlocks uint64 `yaml:"totalBlocks"`
	Inodes      uint64 `yaml:"inodes"`
	FreeInodes  uint64 `yaml:"freeInodes"`
	InodeBitmap uint64 `yaml:"inodeBitmapStart"`
	InodeArea   uint64 `yaml:"inodeStart"`
	DataBitmap  uint64 `yaml:"dataBitmapStart"`
	DataArea    uint64 `yaml:"dataStart"`
	DataBlocks  uint64 `yaml:"dataBlocks"`
	FreeBlocks  uint64 `yaml:"freeBlocks"`
	CacheHits   uint64 `yaml:"cacheHits"`
	CacheMisses uint64 `yaml:"cacheMisses"`
}

func superInfo(fs *efs.EasyFileSystem) (*superRecord, error) {
	sup := fs.Super()
	fs.Lock()
	freeInodes, freeBlocks, err := fs.NumFree(fs.Begin())
	fs.Unlock()
	if err != nil {
		return nil, err
	}
	hits, misses := fs.CacheStats()
	return &superRecord{
		UUID:        sup.UUID.String(),
		TotalBlocks: sup.TotalBlocks,
		Inodes:      uint64(sup.NInode()),
		FreeInodes:  freeInodes,
		InodeBitmap: sup.InodeBitmapStart(),
		InodeArea:   sup.InodeStart(),
		DataBitmap:  sup.DataBitmapStart(),
		DataArea:    sup.DataStart(),
		DataBlocks:  sup.NDataBlk,
		FreeBlocks:  freeBlocks,
		CacheHits:   hits,
		CacheMisses: misses,
	}, nil
}
