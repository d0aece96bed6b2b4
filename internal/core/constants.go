package core

/*
revokeguard — merges iOS DNS profiles into a signed profile and rule lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import "os"

// Output layout, relative to the output directory.
const (
	// ProfileFile is the signed configuration profile.
	ProfileFile = "RevokeGuard_Auto-Sync.mobileconfig"
	// UnsignedProfileFile replaces ProfileFile when signing is unavailable or fails.
	UnsignedProfileFile = "RevokeGuard_Auto-Sync.plist"
	// MetadataFile describes the run.
	MetadataFile = "metadata.json"
	// ProfilesDir holds raw upstream downloads when they are kept.
	ProfilesDir = "profiles"
)

const (
	// SampleSize is the number of domains recorded per source in the metadata.
	SampleSize = 5

	// DirPerm is used for the output directory tree.
	DirPerm os.FileMode = 0o755
)

// Pipeline stages, used as metric labels and log fields.
const (
	StageFetch  = "fetch"
	StageDecode = "decode"
	StageMerge  = "merge"
	StageSign   = "sign"
	StageEmit   = "emit"
)
