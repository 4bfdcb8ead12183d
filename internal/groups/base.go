package groups

import (
	"strconv"
	"strings"
)

// etcGroupBase is the stock Debian group table the group registry is
// seeded with, plus jovyan's personal group at gid 1000.
const etcGroupBase = `root:x:0:
daemon:x:1:
bin:x:2:
sys:x:3:
adm:x:4:
tty:x:5:
disk:x:6:
lp:x:7:
mail:x:8:
news:x:9:
uucp:x:10:
man:x:12:
proxy:x:13:
kmem:x:15:
dialout:x:20:
fax:x:21:
voice:x:22:
cdrom:x:24:
floppy:x:25:
tape:x:26:
sudo:x:27:
audio:x:29:
dip:x:30:
www-data:x:33:
backup:x:34:
operator:x:37:
list:x:38:
irc:x:39:
src:x:40:
gnats:x:41:
shadow:x:42:
utmp:x:43:
video:x:44:
sasl:x:45:
plugdev:x:46:
staff:x:50:
games:x:60:
users:x:100:
nogroup:x:65534:
jovyan:x:1000:`

// baseRows parses etcGroupBase into table rows. Base groups use the
// group name as the team name and carry the group user type.
func baseRows() []row {
	lines := strings.Split(etcGroupBase, "\n")
	rows := make([]row, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(line, ":")
		var members []string
		if fields[3] != "" {
			members = strings.Split(fields[3], ",")
		} else {
			members = []string{}
		}
		gid, _ := strconv.Atoi(fields[2])
		rows = append(rows, row{
			TeamName:  fields[0],
			Groupname: fields[0],
			Password:  fields[1],
			GID:       gid,
			Grouplist: members,
			Status:    "active",
			Usertype:  "group",
		})
	}
	return rows
}
