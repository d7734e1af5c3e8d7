package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/config"
	"github.com/mstgnz/sqlexec/db"
	apperr "github.com/mstgnz/sqlexec/err"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/logger"
	"github.com/mstgnz/sqlexec/plan"
	"github.com/mstgnz/sqlexec/record"
	"github.com/mstgnz/sqlexec/service"
)

// tableFlag parses --table NAME and --columns "C0:int4,C1:float8" into a
// storage spec. The first column is the primary key unless --key names one.
type tableFlag struct {
	Table   string `required:"" help:"Table name."`
	Columns string `required:"" help:"Comma separated name:type column list."`
	Key     string `help:"Primary key column name (defaults to the first column)."`
}

func (t tableFlag) spec() (kvs.TableSpec, []string, error) {
	parts := strings.Split(t.Columns, ",")
	names := make([]string, 0, len(parts))
	types := make([]sqlexec.Type, 0, len(parts))
	for _, part := range parts {
		nv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(nv) != 2 {
			return kvs.TableSpec{}, nil, fmt.Errorf("column %q is not name:type", part)
		}
		kind, err := parseKind(nv[1])
		if err != nil {
			return kvs.TableSpec{}, nil, err
		}
		names = append(names, nv[0])
		types = append(types, sqlexec.SimpleType(kind))
	}
	key := 0
	if t.Key != "" {
		key = -1
		for i, n := range names {
			if n == t.Key {
				key = i
			}
		}
		if key < 0 {
			return kvs.TableSpec{}, nil, fmt.Errorf("key column %q is not in the column list", t.Key)
		}
	}
	return kvs.TableSpec{
		Name:       t.Table,
		Meta:       record.NewNamedMeta(names, types),
		PrimaryKey: []int{key},
	}, names, nil
}

func parseKind(name string) (sqlexec.TypeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "boolean":
		return sqlexec.TypeBoolean, nil
	case "int", "int4":
		return sqlexec.TypeInt4, nil
	case "bigint", "int8":
		return sqlexec.TypeInt8, nil
	case "real", "float4":
		return sqlexec.TypeFloat4, nil
	case "double", "float8":
		return sqlexec.TypeFloat8, nil
	case "decimal":
		return sqlexec.TypeDecimal, nil
	case "varchar", "character", "char":
		return sqlexec.TypeCharacter, nil
	}
	return sqlexec.TypeUnknown, fmt.Errorf("unknown column type %q", name)
}

type scanCmd struct {
	tableFlag
}

// Run scans the whole table and prints the rows.
func (c *scanCmd) Run(cli *cliRoot) error {
	spec, _, err := c.spec()
	if err != nil {
		return err
	}
	engine, session, cleanup, err := cli.boot()
	if err != nil {
		return err
	}
	defer cleanup()
	resp := engine.Route(service.Request{
		SessionID: session.ID,
		Command:   service.CommandExecuteQuery,
		Statement: &service.Statement{Query: &plan.Query{Table: spec}},
	})
	if resp.Code != apperr.StatusOK {
		return fmt.Errorf("%s: %s", resp.Code, resp.Body)
	}
	fmt.Print(string(resp.Body))
	return nil
}

type dumpCmd struct {
	tableFlag
	Out string `required:"" help:"Output directory for dump files." type:"path"`
}

// Run dumps the table and prints the produced file names.
func (c *dumpCmd) Run(cli *cliRoot) error {
	spec, _, err := c.spec()
	if err != nil {
		return err
	}
	engine, session, cleanup, err := cli.boot()
	if err != nil {
		return err
	}
	defer cleanup()
	resp := engine.Route(service.Request{
		SessionID:     session.ID,
		Command:       service.CommandDump,
		Statement:     &service.Statement{Query: &plan.Query{Table: spec}},
		DumpDirectory: c.Out,
	})
	if resp.Code != apperr.StatusOK {
		return fmt.Errorf("%s: %s", resp.Code, resp.Body)
	}
	fmt.Print(string(resp.Body))
	return nil
}

type replayCmd struct {
	tableFlag
	File   string `required:"" help:"Dump file to replay." type:"path"`
	Driver string `required:"" enum:"mysql,postgres" help:"Target driver."`
	DSN    string `required:"" help:"Target connection string."`
	Target string `help:"Target table name (defaults to the source table)."`
}

// Run replays a dump file into an external relational database.
func (c *replayCmd) Run(cli *cliRoot) error {
	spec, names, err := c.spec()
	if err != nil {
		return err
	}
	records, err := loadDump(c.File, spec)
	if err != nil {
		return err
	}
	bridge := db.NewBridge()
	defer bridge.Close()
	if err := bridge.RegisterConnection("target", db.Config{Driver: c.Driver, ConnectionString: c.DSN}); err != nil {
		return err
	}
	target := c.Target
	if target == "" {
		target = spec.Name
	}
	if err := bridge.VerifyTable("target", target, names); err != nil {
		return err
	}
	n, err := bridge.ReplayRows("target", target, names, records)
	if err != nil {
		return err
	}
	fmt.Printf("replayed %d rows into %s\n", n, target)
	return nil
}

type cliRoot struct {
	Config string `help:"Path to the YAML configuration file." type:"path"`
	Store  string `default:"./sqlexec-data" help:"Storage directory." type:"path"`
	Quiet  bool   `help:"Suppress engine logs."`

	Scan   scanCmd   `cmd:"" help:"Scan a table and print its rows."`
	Dump   dumpCmd   `cmd:"" help:"Dump a table to columnar files."`
	Replay replayCmd `cmd:"" help:"Replay a dump file into an external database."`
}

// boot opens the store and starts an engine plus one session.
func (cli *cliRoot) boot() (*service.Engine, *service.Session, func(), error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = loaded
	}
	store, err := kvs.Open(cli.Store)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.NewLogger(logger.Config{})
	if cli.Quiet {
		log = logger.Discard()
	}
	engine, err := service.NewEngine(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	session := engine.Sessions().Create()
	cleanup := func() {
		engine.Sessions().Close(session.ID)
		engine.Shutdown()
		_ = store.Close()
	}
	return engine, session, cleanup, nil
}

// loadDump reads a CSV dump file into driver-friendly row values.
func loadDump(path string, spec kvs.TableSpec) ([][]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	out := make([][]any, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		row := make([]any, len(fields))
		for i, f := range fields {
			if f == "\\N" {
				row[i] = nil
				continue
			}
			row[i] = f
		}
		out = append(out, row)
	}
	return out, nil
}

func main() {
	var cli cliRoot
	ctx := kong.Parse(&cli,
		kong.Name("sqlexec"),
		kong.Description("Operational shell of the sqlexec engine: scan, dump and replay."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
