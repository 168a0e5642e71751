// The admin-table schema model lives here so the provisioner, loaders, and
// the pipeline can all import it without circular deps.
package storage

// PartitionMode selects the table layout strategy.
type PartitionMode string

const (
	// PartitionNone is a plain unpartitioned table.
	PartitionNone PartitionMode = "none"

	// PartitionByYear list-partitions on the year column, one pre-created
	// partition per known data vintage.
	PartitionByYear PartitionMode = "by_year"

	// PartitionByNameKey list-partitions on a name column; partitions are
	// created lazily as new key values are encountered.
	PartitionByNameKey PartitionMode = "by_name_key"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name string
	Mode PartitionMode

	// NameKeyColumn is the partition key column for PartitionByNameKey
	// (e.g. "name_3" for barangay tables). Ignored for other modes.
	NameKeyColumn string
}

// ColumnSpec is a single column definition in the fixed admin schema.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// AdminColumns is the fixed attribute column set shared by every destination
// table, in DDL order. The provisioner prepends a surrogate id and appends
// geometry and timestamp columns.
//
// All attribute columns are nullable: source files differ in which hierarchy
// levels they populate, and provenance columns start NULL until annotated.
var AdminColumns = []ColumnSpec{
	{Name: "year", Type: "integer", Nullable: true},
	{Name: "id_0", Type: "integer", Nullable: true},
	{Name: "iso", Type: "varchar(10)", Nullable: true},
	{Name: "name_0", Type: "varchar(100)", Nullable: true},
	{Name: "id_1", Type: "integer", Nullable: true},
	{Name: "name_1", Type: "varchar(100)", Nullable: true},
	{Name: "id_2", Type: "integer", Nullable: true},
	{Name: "name_2", Type: "varchar(100)", Nullable: true},
	{Name: "id_3", Type: "integer", Nullable: true},
	{Name: "name_3", Type: "varchar(100)", Nullable: true},
	{Name: "id_4", Type: "integer", Nullable: true},
	{Name: "name_4", Type: "varchar(100)", Nullable: true},
	{Name: "nl_name_1", Type: "varchar(100)", Nullable: true},
	{Name: "nl_name_2", Type: "varchar(100)", Nullable: true},
	{Name: "nl_name_3", Type: "varchar(100)", Nullable: true},
	{Name: "varname_1", Type: "varchar(150)", Nullable: true},
	{Name: "varname_2", Type: "varchar(150)", Nullable: true},
	{Name: "varname_3", Type: "varchar(150)", Nullable: true},
	{Name: "type_1", Type: "varchar(50)", Nullable: true},
	{Name: "type_2", Type: "varchar(50)", Nullable: true},
	{Name: "type_3", Type: "varchar(50)", Nullable: true},
	{Name: "engtype_1", Type: "varchar(50)", Nullable: true},
	{Name: "engtype_2", Type: "varchar(50)", Nullable: true},
	{Name: "engtype_3", Type: "varchar(50)", Nullable: true},
	{Name: "province", Type: "varchar(100)", Nullable: true},
	{Name: "region", Type: "varchar(100)", Nullable: true},
	{Name: "admin_level", Type: "varchar(20)", Nullable: true},
	{Name: "source_path", Type: "text", Nullable: true},
	{Name: "data_year", Type: "integer", Nullable: true},
}

// AdminColumnNames returns the names of AdminColumns in order.
func AdminColumnNames() []string {
	out := make([]string, len(AdminColumns))
	for i, c := range AdminColumns {
		out[i] = c.Name
	}
	return out
}
