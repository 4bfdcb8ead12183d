package users

import (
	"strconv"
	"strings"

	"github.com/jshihstsci/uidgid/internal/types"
)

// etcPasswdBase is the stock /etc/passwd content of the notebook image.
// It is seeded into the user table exactly once, when the table file is
// first created, and never overwritten afterwards. The uid-1000 service
// user occupies the bottom of the user range, so the first allocated
// individual uid is 1001.
const etcPasswdBase = `root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
bin:x:2:2:bin:/bin:/usr/sbin/nologin
sys:x:3:3:sys:/dev:/usr/sbin/nologin
sync:x:4:65534:sync:/bin:/bin/sync
games:x:5:60:games:/usr/games:/usr/sbin/nologin
man:x:6:12:man:/var/cache/man:/usr/sbin/nologin
lp:x:7:7:lp:/var/spool/lpd:/usr/sbin/nologin
mail:x:8:8:mail:/var/mail:/usr/sbin/nologin
news:x:9:9:news:/var/spool/news:/usr/sbin/nologin
uucp:x:10:10:uucp:/var/spool/uucp:/usr/sbin/nologin
proxy:x:13:13:proxy:/bin:/usr/sbin/nologin
www-data:x:33:33:www-data:/var/www:/usr/sbin/nologin
backup:x:34:34:backup:/var/backups:/usr/sbin/nologin
list:x:38:38:Mailing List Manager:/var/list:/usr/sbin/nologin
irc:x:39:39:ircd:/run/ircd:/usr/sbin/nologin
nobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin
jovyan:x:1000:1000::/home/jovyan:/bin/bash`

// baseRows parses etcPasswdBase into seed rows. Base records carry
// placeholder upstream identities and are always active; they are never
// looked up by uuid or ezid.
func baseRows() []row {
	lines := strings.Split(etcPasswdBase, "\n")
	rows := make([]row, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, ":")
		uid, _ := strconv.Atoi(f[2])
		gid, _ := strconv.Atoi(f[3])
		rows = append(rows, row{
			Username: f[0],
			Password: f[1],
			UID:      uid,
			GID:      gid,
			Descr:    f[4],
			Home:     f[5],
			Shell:    f[6],
			UUID:     "",
			Ezid:     "",
			Status:   string(types.StatusActive),
			Usertype: "",
		})
	}
	return rows
}
