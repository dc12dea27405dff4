package database_test

import (
	"bytes"
	"testing"

	"github.com/utxonode/chaind/infrastructure/db/database"
)

func TestDatabasePut(t *testing.T) {
	testForAllDatabaseTypes(t, "TestDatabasePut", testDatabasePut)
}

func testDatabasePut(t *testing.T, db database.Database, testName string) {
	key := database.MakeBucket([]byte("coins")).Key([]byte("key"))
	for _, value := range [][]byte{[]byte("value1"), []byte("value2")} {
		err := db.Put(key, value)
		if err != nil {
			t.Fatalf("%s: Put unexpectedly failed: %s", testName, err)
		}
		returnedValue, err := db.Get(key)
		if err != nil {
			t.Fatalf("%s: Get unexpectedly failed: %s", testName, err)
		}
		if !bytes.Equal(returnedValue, value) {
			t.Fatalf("%s: Get returned wrong value. Want: %s, got: %s",
				testName, value, returnedValue)
		}
	}
}

func TestDatabaseGetMissing(t *testing.T) {
	testForAllDatabaseTypes(t, "TestDatabaseGetMissing", testDatabaseGetMissing)
}

func testDatabaseGetMissing(t *testing.T, db database.Database, testName string) {
	key := database.MakeBucket([]byte("coins")).Key([]byte("missing"))
	_, err := db.Get(key)
	if !database.IsNotFoundError(err) {
		t.Fatalf("%s: Get returned wrong error: %v", testName, err)
	}
	exists, err := db.Has(key)
	if err != nil {
		t.Fatalf("%s: Has unexpectedly failed: %s", testName, err)
	}
	if exists {
		t.Fatalf("%s: Has unexpectedly returned true", testName)
	}
}

func TestDatabaseDelete(t *testing.T) {
	testForAllDatabaseTypes(t, "TestDatabaseDelete", testDatabaseDelete)
}

func testDatabaseDelete(t *testing.T, db database.Database, testName string) {
	entries := populateDatabaseForTest(t, db, testName)
	err := db.Delete(entries[3].key)
	if err != nil {
		t.Fatalf("%s: Delete unexpectedly failed: %s", testName, err)
	}
	exists, err := db.Has(entries[3].key)
	if err != nil {
		t.Fatalf("%s: Has unexpectedly failed: %s", testName, err)
	}
	if exists {
		t.Fatalf("%s: key unexpectedly exists after Delete", testName)
	}

	// Deleting a missing key is not an error
	err = db.Delete(entries[3].key)
	if err != nil {
		t.Fatalf("%s: second Delete unexpectedly failed: %s", testName, err)
	}
}

func TestBucketPathsDoNotOverlap(t *testing.T) {
	parent := database.MakeBucket([]byte("a"))
	child := parent.Bucket([]byte("b"))
	if !bytes.Equal(child.Path(), []byte("a/b/")) {
		t.Fatalf("TestBucketPathsDoNotOverlap: unexpected child path %q", child.Path())
	}
	key := child.Key([]byte("k"))
	if !bytes.Equal(key.Bytes(), []byte("a/b/k")) {
		t.Fatalf("TestBucketPathsDoNotOverlap: unexpected key bytes %q", key.Bytes())
	}
	if !bytes.HasPrefix(key.Bytes(), parent.Path()) {
		t.Fatalf("TestBucketPathsDoNotOverlap: child key is not under the parent bucket")
	}
}
