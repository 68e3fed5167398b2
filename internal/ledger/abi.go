package ledger

// AttestationABI is the interface of the deployed attestation contract.
const AttestationABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"attester","type":"address"}],"name":"AttesterAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"attester","type":"address"}],"name":"AttesterRegistered","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"user","type":"address"},{"indexed":true,"internalType":"uint256","name":"documentIndex","type":"uint256"}],"name":"DocumentApproved","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"user","type":"address"},{"indexed":true,"internalType":"uint256","name":"documentIndex","type":"uint256"},{"indexed":false,"internalType":"uint8","name":"status","type":"uint8"},{"indexed":false,"internalType":"string","name":"rejectionReason","type":"string"}],"name":"DocumentAttested","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"user","type":"address"},{"indexed":true,"internalType":"uint256","name":"documentIndex","type":"uint256"},{"indexed":false,"internalType":"string","name":"cid","type":"string"}],"name":"DocumentSubmitted","type":"event"},
{"inputs":[],"name":"REQUIRED_STAKE","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"documentIndex","type":"uint256"}],"name":"approveDocument","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"attesters","outputs":[{"internalType":"bool","name":"isActive","type":"bool"},{"internalType":"uint256","name":"stakedAmount","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"becomeAttester","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[],"name":"getMyPendingDocuments","outputs":[{"internalType":"address[]","name":"userAddresses","type":"address[]"},{"internalType":"uint256[]","name":"indices","type":"uint256[]"},{"internalType":"string[]","name":"cids","type":"string[]"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getStatistics","outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserDocuments","outputs":[{"internalType":"string[]","name":"cids","type":"string[]"},{"internalType":"uint8[]","name":"status","type":"uint8[]"},{"internalType":"string[]","name":"rejectionReasons","type":"string[]"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"isAttester","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"documentIndex","type":"uint256"},{"internalType":"string","name":"reason","type":"string"}],"name":"rejectDocument","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"string","name":"cid","type":"string"}],"name":"submitDocument","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`
