/*
Copyright (c) 2013-2018 The btcsuite developers
Use of this source code is governed by an ISC
license that can be found in the LICENSE file.

Chaind is a block chain validation and state-transition engine. It keeps an
index of every header it has seen, validates blocks against the consensus
rules, maintains the set of unspent transaction outputs of the best valid
chain, and reorganizes to a chain with more work as soon as one becomes
available.

The default options are sane for most users. This means chaind will work 'out of
the box' for most users. However, there are also a wide variety of flags that
can be used to control it.

Usage:

	chaind [OPTIONS]

For an up-to-date help message:

	chaind --help

The long form of all option flags (except -C) can be specified in a configuration
file that is automatically parsed when chaind starts up. By default, the
configuration file is located at ~/.chaind/chaind.conf on POSIX-style operating
systems and %LOCALAPPDATA%\chaind\chaind.conf on Windows. The -C (--configfile)
flag can be used to override this location.

Blocks serialized back to back in a file can be fed to the engine on startup
with --importfile.
*/
package main
